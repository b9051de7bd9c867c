package list

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"animehub/internal/auth"
	"animehub/pkg/models"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/list", h.list)
	rg.GET("/list/:malID", h.get)
	rg.PUT("/list/:malID", h.update)
	rg.DELETE("/list/:malID", h.delete)
	rg.PUT("/list/:malID/progress", h.progress)
}

func (h *Handler) list(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	status := c.Query("status")
	if status != "" && !models.ValidListStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	entries, total, err := h.svc.Lists.List(c.Request.Context(), claims.UserID, status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load list"})
		return
	}
	if entries == nil {
		entries = []EntryWithAnime{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) get(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	malID, ok := paramInt(c, "malID")
	if !ok {
		return
	}

	entry, err := h.svc.Lists.Get(c.Request.Context(), claims.UserID, malID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load entry"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) update(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	malID, ok := paramInt(c, "malID")
	if !ok {
		return
	}

	var req struct {
		Status          string  `json:"status" binding:"required"`
		Score           *int    `json:"score"`
		EpisodesWatched int     `json:"episodes_watched"`
		StartDate       *string `json:"start_date"`
		FinishDate      *string `json:"finish_date"`
		Notes           string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	entry := &models.ListEntry{
		UserID:          claims.UserID,
		MALID:           malID,
		Status:          req.Status,
		Score:           req.Score,
		EpisodesWatched: req.EpisodesWatched,
		StartDate:       req.StartDate,
		FinishDate:      req.FinishDate,
		Notes:           req.Notes,
	}
	if err := h.svc.UpdateEntry(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) delete(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	malID, ok := paramInt(c, "malID")
	if !ok {
		return
	}

	deleted, err := h.svc.DeleteEntry(c.Request.Context(), claims.UserID, malID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete entry"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "entry deleted"})
}

func (h *Handler) progress(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	malID, ok := paramInt(c, "malID")
	if !ok {
		return
	}

	var req struct {
		Episode           int      `json:"episode" binding:"required"`
		CompletionPercent *float64 `json:"completion_percent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "episode is required"})
		return
	}

	result, err := h.svc.ApplyEpisodeProgress(c.Request.Context(), claims.UserID, malID, req.Episode, req.CompletionPercent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func paramInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

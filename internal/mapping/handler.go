package mapping

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"animehub/pkg/models"
)

type Handler struct {
	Repo    *Repo
	Service *Service
}

func NewHandler(repo *Repo, service *Service) *Handler {
	return &Handler{Repo: repo, Service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/mappings", h.list)
	rg.GET("/mappings/stats", h.stats)
	rg.GET("/mappings/unmapped", h.unmapped)
	rg.GET("/mappings/search", h.search)
	rg.GET("/mappings/:anidbID", h.get)
	rg.POST("/mappings", h.create)
	rg.PUT("/mappings/:anidbID", h.update)
	rg.DELETE("/mappings/:anidbID", h.delete)
	rg.POST("/mappings/refresh-confidence", h.refreshConfidence)
}

func (h *Handler) list(c *gin.Context) {
	provenance := strings.TrimSpace(c.Query("provenance"))
	if provenance != "" && !models.ValidProvenance(provenance) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provenance"})
		return
	}
	limit := parseInt(c.Query("limit"), 100)
	offset := parseInt(c.Query("offset"), 0)

	items, total, err := h.Repo.List(c.Request.Context(), provenance, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) get(c *gin.Context) {
	anidbID, err := strconv.Atoi(c.Param("anidbID"))
	if err != nil || anidbID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anidb id"})
		return
	}
	m, err := h.Repo.Get(c.Request.Context(), anidbID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

type createMappingReq struct {
	AniDBID    int      `json:"anidb_id"`
	MALID      *int     `json:"mal_id"`
	Title      string   `json:"title"`
	Confidence *float64 `json:"confidence"`
	Provenance string   `json:"provenance"`
}

func (h *Handler) create(c *gin.Context) {
	var req createMappingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AniDBID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anidb_id required"})
		return
	}
	if req.Provenance == "" {
		req.Provenance = models.ProvenanceManual
	}
	if !models.ValidProvenance(req.Provenance) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provenance"})
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confidence must be in [0,1]"})
		return
	}

	if existing, _ := h.Repo.Get(c.Request.Context(), req.AniDBID); existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "mapping already exists"})
		return
	}

	m, err := h.Repo.Create(c.Request.Context(), models.AniDBMapping{
		AniDBID:    req.AniDBID,
		MALID:      req.MALID,
		Title:      strings.TrimSpace(req.Title),
		Confidence: req.Confidence,
		Provenance: req.Provenance,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, m)
}

type updateMappingReq struct {
	MALID      *int     `json:"mal_id"`
	Title      *string  `json:"title"`
	Confidence *float64 `json:"confidence"`
	Provenance *string  `json:"provenance"`
}

func (h *Handler) update(c *gin.Context) {
	anidbID, err := strconv.Atoi(c.Param("anidbID"))
	if err != nil || anidbID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anidb id"})
		return
	}

	var req updateMappingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Provenance != nil && !models.ValidProvenance(*req.Provenance) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provenance"})
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confidence must be in [0,1]"})
		return
	}

	m, err := h.Repo.Update(c.Request.Context(), anidbID, req.MALID, req.Title, req.Confidence, req.Provenance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) delete(c *gin.Context) {
	anidbID, err := strconv.Atoi(c.Param("anidbID"))
	if err != nil || anidbID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anidb id"})
		return
	}
	deleted, err := h.Repo.Delete(c.Request.Context(), anidbID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q required"})
		return
	}
	limit := parseInt(c.Query("limit"), 50)

	items, err := h.Repo.Search(c.Request.Context(), query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) unmapped(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 100)
	items, err := h.Repo.Unmapped(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) stats(c *gin.Context) {
	s, err := h.Repo.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) refreshConfidence(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 1000)
	stats, err := h.Service.RefreshConfidence(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

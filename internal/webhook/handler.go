package webhook

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"animehub/internal/auth"
)

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, secret string) *Handler {
	return &Handler{svc: svc, secret: secret}
}

// RegisterPublicRoutes mounts the webhook receiver. It is authenticated
// by HMAC signature, not by JWT, since Jellyfin cannot log in.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/jellyfin", h.receive)
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/activities", h.listActivities)
	rg.GET("/activities/stats", h.activityStats)
	rg.POST("/activities/reprocess", h.reprocess)
}

func (h *Handler) receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}

	if !VerifySignature(h.secret, body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	result, err := h.svc.ProcessWebhook(c.Request.Context(), &payload)
	if err != nil {
		log.Printf("[webhook] processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	// Always 200 for handled events so the plugin does not redeliver;
	// the body says whether progress actually moved.
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listActivities(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	var processed *bool
	switch c.Query("processed") {
	case "true":
		v := true
		processed = &v
	case "false":
		v := false
		processed = &v
	}

	acts, total, err := h.svc.Activities.List(c.Request.Context(), claims.UserID, processed, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load activities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"activities": acts,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *Handler) activityStats(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	stats, err := h.svc.Activities.Stats(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) reprocess(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	limit := queryInt(c, "limit", 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	stats, err := h.svc.Reprocess(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reprocess failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
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

package syncer

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"animehub/internal/auth"
)

type Handler struct {
	queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.enqueue)
	rg.GET("/sync/jobs/:jobID", h.job)
	rg.GET("/sync/status", h.status)
	rg.POST("/sync/all", h.syncAll)
}

func (h *Handler) enqueue(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	var req struct {
		Force bool `json:"force"`
	}
	_ = c.ShouldBindJSON(&req)

	job, err := h.queue.Enqueue(claims.UserID, req.Force)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) job(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	job := h.queue.GetJob(c.Param("jobID"))
	if job == nil || job.UserID != claims.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":     job,
		"ready":   job.Status == JobSucceeded || job.Status == JobFailed,
		"success": job.Status == JobSucceeded,
	})
}

func (h *Handler) status(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	jobs := h.queue.Jobs(claims.UserID)
	if jobs == nil {
		jobs = []*Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// syncAll enqueues a run for every linked account. Intended for a cron
// hitting the API rather than per-user interactive use.
func (h *Handler) syncAll(c *gin.Context) {
	var req struct {
		Force bool `json:"force"`
	}
	_ = c.ShouldBindJSON(&req)

	users, err := h.queue.svc.Users.ListUsersWithMALTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list linked users"})
		return
	}

	jobs := make([]*Job, 0, len(users))
	for _, u := range users {
		job, err := h.queue.Enqueue(u.ID, req.Force)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": err.Error(), "jobs": jobs, "enqueued": len(jobs),
			})
			return
		}
		jobs = append(jobs, job)
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": jobs, "enqueued": len(jobs)})
}

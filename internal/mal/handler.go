package mal

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"animehub/internal/auth"
)

// Handler exposes the MAL account-linking endpoints. The OAuth state is
// held in memory; a restart mid-flow just means re-requesting the auth URL.
type Handler struct {
	client *Client
	users  *auth.Repo

	mu     sync.Mutex
	states map[string]pendingState
}

type pendingState struct {
	userID    string
	createdAt time.Time
}

const stateTTL = 10 * time.Minute

func NewHandler(client *Client, users *auth.Repo) *Handler {
	return &Handler{
		client: client,
		users:  users,
		states: make(map[string]pendingState),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/mal/auth-url", h.authURL)
	rg.POST("/mal/callback", h.callback)
	rg.GET("/mal/profile", h.profile)
	rg.DELETE("/mal/link", h.unlink)
}

func (h *Handler) authURL(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	state := uuid.NewString()
	h.mu.Lock()
	for s, p := range h.states {
		if time.Since(p.createdAt) > stateTTL {
			delete(h.states, s)
		}
	}
	h.states[state] = pendingState{userID: claims.UserID, createdAt: time.Now()}
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"auth_url": h.client.GenerateAuthURL(state),
		"state":    state,
	})
}

func (h *Handler) callback(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	var req struct {
		Code  string `json:"code" binding:"required"`
		State string `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state are required"})
		return
	}

	h.mu.Lock()
	pending, ok := h.states[req.State]
	delete(h.states, req.State)
	h.mu.Unlock()

	if !ok || pending.userID != claims.UserID || time.Since(pending.createdAt) > stateTTL {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or expired state"})
		return
	}

	tok, err := h.client.ExchangeCode(c.Request.Context(), req.Code, req.State)
	if err != nil {
		log.Printf("[mal] code exchange failed for user %s: %v", claims.UserID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange with myanimelist failed"})
		return
	}

	expiresAt := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := h.users.StoreMALTokens(c.Request.Context(), claims.UserID, tok.AccessToken, tok.RefreshToken, expiresAt); err != nil {
		log.Printf("[mal] storing tokens failed for user %s: %v", claims.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store tokens"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "myanimelist account linked"})
}

func (h *Handler) profile(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		return
	}
	if !user.HasMALTokens() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no myanimelist account linked"})
		return
	}

	token, err := h.client.EnsureValidToken(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "myanimelist authentication failed, relink your account"})
		return
	}

	info, err := h.client.GetUserInfo(c.Request.Context(), token)
	if err != nil {
		log.Printf("[mal] profile fetch failed for user %s: %v", claims.UserID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch myanimelist profile"})
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *Handler) unlink(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	if err := h.users.ClearMALTokens(c.Request.Context(), claims.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not unlink account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "myanimelist account unlinked"})
}

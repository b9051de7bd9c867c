package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"animehub/internal/activity"
	"animehub/internal/anime"
	"animehub/internal/auth"
	"animehub/internal/events"
	"animehub/internal/list"
	"animehub/internal/mal"
	"animehub/internal/mapping"
	"animehub/internal/syncer"
	"animehub/internal/webhook"
	"animehub/pkg/database"
	"animehub/pkg/utils"
)

func main() {
	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := events.NewHub()
	router.GET("/ws", events.WSHandler(hub))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": stats.Clients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": stats.Clients,
		})
	})

	router.GET("/debug", func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"db":         cfg.Path,
			"ws_clients": stats.Clients,
		})
	})

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	authRepo := auth.NewRepo(db)
	authHandler := auth.NewHandler(authRepo, tokenSvc)
	authHandler.RegisterRoutes(router.Group("/auth"))

	// Repos
	mappingRepo := mapping.NewRepo(db)
	animeRepo := anime.NewRepo(db)
	listRepo := list.NewRepo(db)
	activityRepo := activity.NewRepo(db)

	// MAL client
	malCfg := utils.LoadMALConfig()
	malClient := mal.NewClient(mal.Config{
		ClientID:          malCfg.ClientID,
		ClientSecret:      malCfg.ClientSecret,
		RedirectURI:       malCfg.RedirectURI,
		RequestsPerSecond: malCfg.RequestsPerSecond,
		MaxAttempts:       malCfg.MaxAttempts,
	}, authRepo)

	// Services
	listSvc := &list.Service{
		Lists: listRepo,
		Anime: animeRepo,
		Users: authRepo,
		MAL:   malClient,
		Hub:   hub,
	}
	mappingSvc := &mapping.Service{
		Mappings: mappingRepo,
		Anime:    animeRepo,
	}
	webhookSvc := &webhook.Service{
		Users:      authRepo,
		Mappings:   mappingRepo,
		Activities: activityRepo,
		Lists:      listSvc,
	}
	syncSvc := &syncer.Service{
		DB:    db,
		Users: authRepo,
		Anime: animeRepo,
		Lists: listRepo,
		MAL:   malClient,
		Hub:   hub,
	}

	syncCfg := utils.LoadSyncConfig()
	queue := syncer.NewQueue(syncSvc, syncCfg.Workers, syncCfg.RunDeadline)
	queue.Start()

	// Webhook receiver (HMAC-authenticated, not JWT)
	webhookCfg := utils.LoadWebhookConfig()
	webhookHandler := webhook.NewHandler(webhookSvc, webhookCfg.Secret)
	webhookHandler.RegisterPublicRoutes(router.Group("/"))

	// Protected API
	protected := router.Group("/api")
	protected.Use(auth.AuthMiddleware(tokenSvc, authRepo))

	protected.GET("/me", func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
			"email":    claims.Email,
		})
	})

	mapping.NewHandler(mappingRepo, mappingSvc).RegisterRoutes(protected)
	list.NewHandler(listSvc).RegisterRoutes(protected)
	webhookHandler.RegisterRoutes(protected)
	mal.NewHandler(malClient, authRepo).RegisterRoutes(protected)
	syncer.NewHandler(queue).RegisterRoutes(protected)

	httpSrv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("HTTP API server listening on :8080")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	queue.Stop()
	log.Println("stopped")
}

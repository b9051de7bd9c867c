package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("ANIMEHUB_JWT_SECRET")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("ANIMEHUB_JWT_ISSUER")
	if issuer == "" {
		issuer = "animehub"
	}

	dur := 24 * time.Hour
	if ttl := os.Getenv("ANIMEHUB_JWT_TTL_HOURS"); ttl != "" {
		if h, err := strconv.Atoi(ttl); err == nil && h > 0 {
			dur = time.Duration(h) * time.Hour
		}
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   issuer,
		JWTDuration: dur,
	}
}

// MALConfig holds MyAnimeList API credentials and client tuning. The 1 rps
// default matches the MAL API guidance; bump via env only if you know the
// account can take it.
type MALConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	RequestsPerSecond float64
	MaxAttempts       int
}

func LoadMALConfig() MALConfig {
	cfg := MALConfig{
		ClientID:          os.Getenv("ANIMEHUB_MAL_CLIENT_ID"),
		ClientSecret:      os.Getenv("ANIMEHUB_MAL_CLIENT_SECRET"),
		RedirectURI:       os.Getenv("ANIMEHUB_MAL_REDIRECT_URI"),
		RequestsPerSecond: 1,
		MaxAttempts:       3,
	}

	if v := os.Getenv("ANIMEHUB_MAL_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("ANIMEHUB_MAL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	return cfg
}

type WebhookConfig struct {
	// Secret for HMAC-SHA256 signature verification. Empty means
	// verification is skipped, not failed.
	Secret string
}

func LoadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Secret: os.Getenv("ANIMEHUB_WEBHOOK_SECRET"),
	}
}

type SyncConfig struct {
	Workers     int
	RunDeadline time.Duration
}

func LoadSyncConfig() SyncConfig {
	cfg := SyncConfig{
		Workers:     2,
		RunDeadline: 15 * time.Minute,
	}
	if v := os.Getenv("ANIMEHUB_SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("ANIMEHUB_SYNC_DEADLINE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RunDeadline = time.Duration(n) * time.Minute
		}
	}
	return cfg
}

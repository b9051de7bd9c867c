package mal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.myanimelist.net/v2"
	defaultAuthURL = "https://myanimelist.net/v1/oauth2"

	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 30 * time.Second
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// BaseURL/AuthURL are overridable for tests.
	BaseURL string
	AuthURL string

	RequestsPerSecond float64
	MaxAttempts       int
	HTTPTimeout       time.Duration
}

// TokenStore persists rotated MAL tokens back to the user's stored
// credentials. Satisfied by auth.Repo.
type TokenStore interface {
	StoreMALTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
}

// Client wraps all outbound MAL API traffic behind a shared token-bucket
// limiter and a retry policy with exponential backoff. One instance is
// constructed at process start and shared by every caller.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	baseURL      string
	authURL      string
	limiter      *rate.Limiter
	maxAttempts  uint
	tokens       TokenStore
}

func NewClient(cfg Config, tokens TokenStore) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	return &Client{
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		authURL:      strings.TrimRight(cfg.AuthURL, "/"),
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		maxAttempts:  uint(cfg.MaxAttempts),
		tokens:       tokens,
	}
}

// backoffDelay computes base * 2^n capped at retryMaxDelay, with uniform
// 50-100% jitter. A 429 Retry-After from the server wins when larger.
func (c *Client) backoffDelay(n uint, err error, _ *retry.Config) time.Duration {
	delay := retryBaseDelay << n
	if delay > retryMaxDelay || delay <= 0 {
		delay = retryMaxDelay
	}
	delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > delay {
		delay = rateErr.RetryAfter
	}
	return delay
}

// doRequest performs one rate-limited, retried HTTP round trip and decodes
// a JSON response into out (when out is non-nil).
func (c *Client) doRequest(ctx context.Context, method, rawURL string, query url.Values, body io.Reader, contentType, accessToken string, out any) error {
	var payload []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
		payload = b
	}

	reqURL := rawURL
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}

			var reader io.Reader
			if payload != nil {
				reader = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			if accessToken != "" {
				req.Header.Set("Authorization", "Bearer "+accessToken)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("mal request: %w", err)
			}
			defer resp.Body.Close()

			respBody, _ := io.ReadAll(resp.Body)

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				if out != nil && len(respBody) > 0 {
					if err := json.Unmarshal(respBody, out); err != nil {
						return fmt.Errorf("decode mal response: %w", err)
					}
				}
				return nil
			case resp.StatusCode == http.StatusTooManyRequests:
				return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return &AuthError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(respBody))}
			default:
				return &APIError{Service: "myanimelist", StatusCode: resp.StatusCode, Body: truncate(respBody)}
			}
		},
		retry.Attempts(c.maxAttempts),
		retry.Context(ctx),
		retry.RetryIf(IsRetryable),
		retry.DelayType(c.backoffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, accessToken string, out any) error {
	return c.doRequest(ctx, http.MethodGet, c.baseURL+path, query, nil, "", accessToken, out)
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// --- OAuth2 flow ---

type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// GenerateAuthURL builds the authorization-code URL. The state doubles as
// the plain PKCE code challenge, so callers pass the same value back to
// ExchangeCode.
func (c *Client) GenerateAuthURL(state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("state", state)
	params.Set("code_challenge_method", "plain")
	params.Set("code_challenge", state)
	return c.authURL + "/authorize?" + params.Encode()
}

func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.redirectURI)

	var tok TokenResponse
	err := c.doRequest(ctx, http.MethodPost, c.authURL+"/token", nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", "", &tok)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return &tok, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var tok TokenResponse
	err := c.doRequest(ctx, http.MethodPost, c.authURL+"/token", nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", "", &tok)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return &tok, nil
}

// --- API surface ---

type UserInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Picture  string `json:"picture"`
	JoinedAt string `json:"joined_at"`
}

func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	var info UserInfo
	if err := c.getJSON(ctx, "/users/@me", nil, accessToken, &info); err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	return &info, nil
}

const listFields = "list_status,num_episodes,mean,rank,popularity,status," +
	"start_date,end_date,start_season,alternative_titles,synopsis,main_picture"

func (c *Client) GetUserAnimeList(ctx context.Context, accessToken, status string, limit, offset int) (*AnimeListPage, error) {
	query := url.Values{}
	query.Set("fields", listFields)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	if status != "" {
		query.Set("status", status)
	}

	var page AnimeListPage
	if err := c.getJSON(ctx, "/users/@me/animelist", query, accessToken, &page); err != nil {
		return nil, fmt.Errorf("get anime list: %w", err)
	}
	return &page, nil
}

func (c *Client) UpdateAnimeListStatus(ctx context.Context, accessToken string, animeID int, upd ListStatusUpdate) (*ListStatus, error) {
	body, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("marshal list update: %w", err)
	}

	var status ListStatus
	err = c.doRequest(ctx, http.MethodPatch,
		fmt.Sprintf("%s/anime/%d/my_list_status", c.baseURL, animeID),
		nil, bytes.NewReader(body), "application/json", accessToken, &status)
	if err != nil {
		return nil, fmt.Errorf("update list status for anime %d: %w", animeID, err)
	}
	return &status, nil
}

func (c *Client) DeleteAnimeListItem(ctx context.Context, accessToken string, animeID int) error {
	err := c.doRequest(ctx, http.MethodDelete,
		fmt.Sprintf("%s/anime/%d/my_list_status", c.baseURL, animeID),
		nil, nil, "", accessToken, nil)
	if err != nil {
		return fmt.Errorf("delete list item for anime %d: %w", animeID, err)
	}
	return nil
}

const searchFields = "id,title,main_picture,alternative_titles,start_date,end_date," +
	"synopsis,mean,rank,popularity,num_episodes,status,start_season"

func (c *Client) SearchAnime(ctx context.Context, accessToken, q string, limit, offset int) (*SearchPage, error) {
	query := url.Values{}
	query.Set("q", q)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("fields", searchFields)

	var page SearchPage
	if err := c.getJSON(ctx, "/anime", query, accessToken, &page); err != nil {
		return nil, fmt.Errorf("search anime: %w", err)
	}
	return &page, nil
}

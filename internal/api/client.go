// Package api implements the HTTP client for the remote authority: the
// project monitoring backend's authentication, progress, media and GPS
// track endpoints. The client classifies every failure into the core's
// error taxonomy; retry policy lives with the sync orchestrator, never
// here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/wirasto/fieldsync/internal/auth"
	apperrors "github.com/wirasto/fieldsync/internal/errors"
	"github.com/wirasto/fieldsync/internal/models"
)

// Client talks to the remote authority. Bearer tokens are drawn from an
// oauth2.TokenSource, implemented by auth.Manager.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// uploadClient performs direct object-storage PUTs. Kept separate so a
	// large video upload is not capped by the API call timeout.
	uploadClient *http.Client
	limiter      *rate.Limiter
	tokens       oauth2.TokenSource
	exempt       func(rawURL string) bool
}

// Config holds client construction parameters.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	// Exempt reports whether a URL must not receive a bearer header.
	Exempt func(rawURL string) bool
}

// NewClient creates a new Client. tokens may be nil until the auth manager
// exists; SetTokenSource wires it afterwards (the manager itself needs
// the client for refresh calls).
func NewClient(cfg Config, tokens oauth2.TokenSource) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	exempt := cfg.Exempt
	if exempt == nil {
		exempt = func(string) bool { return false }
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		uploadClient: &http.Client{Timeout: 10 * time.Minute},
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		tokens:       tokens,
		exempt:       exempt,
	}
}

// SetTokenSource wires the token source after construction.
func (c *Client) SetTokenSource(tokens oauth2.TokenSource) {
	c.tokens = tokens
}

// apiError is the backend's error body shape.
type apiError struct {
	Detail string `json:"detail"`
}

// classifyStatus maps an HTTP response status to the error taxonomy.
func classifyStatus(status int, detail string) error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	msg := fmt.Sprintf("remote authority returned %d: %s", status, detail)

	switch {
	case status == http.StatusUnauthorized:
		return apperrors.New(apperrors.ErrAuthRequired, msg)
	case status == http.StatusForbidden:
		return apperrors.New(apperrors.ErrForbidden, msg)
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, msg)
	case status == http.StatusConflict:
		return apperrors.New(apperrors.ErrConflict, msg)
	case status == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrRateLimited, msg)
	case status >= 500:
		return apperrors.New(apperrors.ErrServer, msg)
	case status >= 400:
		return apperrors.New(apperrors.ErrValidation, msg)
	}
	return apperrors.New(apperrors.ErrInternal, msg)
}

// classifyTransport maps a transport-level error to the taxonomy. A timeout
// is transient; so is any other network failure.
func classifyTransport(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "Client.Timeout") {
		return apperrors.Wrap(apperrors.ErrTimeout, "request timed out", err)
	}
	return apperrors.Wrap(apperrors.ErrNetwork, "request failed", err)
}

// doJSON executes one API call with rate limiting, optional bearer
// injection and JSON encoding on both sides. Exempt URLs never receive a
// bearer header even when authed is requested.
func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, body, out interface{}, authed bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrTimeout, "rate limiter wait cancelled", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if authed && !c.exempt(fullURL) {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &apiErr)
		return classifyStatus(resp.StatusCode, apiErr.Detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to decode response body", err)
		}
	}
	return nil
}

// =====================================================
// Authentication
// =====================================================

// LoginRequest carries the login form. OneTimeCode is the optional MFA
// code.
type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	OneTimeCode string `json:"one_time_code,omitempty"`
}

// LoginResult is the authenticated session returned by login.
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         models.User `json:"user"`
}

// TokenPair converts the login result to an auth token pair.
func (r *LoginResult) TokenPair() *auth.TokenPair {
	pair := &auth.TokenPair{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		pair.ExpiresAt = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return pair
}

// Login authenticates with username, password and optional one-time code.
// The endpoint is exempt from credential injection.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var result LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, req, &result, false); err != nil {
		return nil, err
	}
	return &result, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Refresh exchanges a refresh token for a new pair. Implements
// auth.Refresher; like login, the endpoint is exempt from credential
// injection.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	var resp refreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", nil,
		refreshRequest{RefreshToken: refreshToken}, &resp, false); err != nil {
		return nil, err
	}

	pair := &auth.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		pair.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return pair, nil
}

// =====================================================
// Progress Reports
// =====================================================

// ReportResult is the canonical record returned for a progress report.
type ReportResult struct {
	ProgressID      string  `json:"progress_id"`
	ProjectID       string  `json:"project_id"`
	ReportedPercent float64 `json:"reported_percent"`
	CreatedAt       string  `json:"created_at"`
}

// CreateProgressReport submits a locally authored report. The idempotency
// key lets the server deduplicate a retried create whose first response was
// lost.
func (c *Client) CreateProgressReport(ctx context.Context, projectID models.UUID, payload models.ReportCreatePayload, idempotencyKey string) (*ReportResult, error) {
	var result ReportResult
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	path := fmt.Sprintf("/projects/%s/progress", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, headers, payload, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateProgressReport amends an already-synced report identified by its
// server ID.
func (c *Client) UpdateProgressReport(ctx context.Context, serverID string, payload models.ReportCreatePayload, idempotencyKey string) (*ReportResult, error) {
	var result ReportResult
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	path := fmt.Sprintf("/progress/%s", serverID)
	if err := c.doJSON(ctx, http.MethodPatch, path, headers, payload, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// =====================================================
// Media
// =====================================================

// PresignRequest asks for a direct-upload URL.
type PresignRequest struct {
	ProjectID   models.UUID `json:"project_id"`
	MediaType   string      `json:"media_type"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	Latitude    float64     `json:"latitude,omitempty"`
	Longitude   float64     `json:"longitude,omitempty"`
}

// PresignResult carries the presigned upload URL and the media key to
// register afterwards. The URL is time-limited; a stale one must be
// re-requested, never reused.
type PresignResult struct {
	UploadURL string `json:"upload_url"`
	MediaKey  string `json:"storage_key"`
	ExpiresIn int    `json:"expires_in"`
}

// PresignMedia requests an upload URL and media key.
func (c *Client) PresignMedia(ctx context.Context, req PresignRequest) (*PresignResult, error) {
	var result PresignResult
	if err := c.doJSON(ctx, http.MethodPost, "/media/upload-url", nil, req, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadToPresignedURL streams file bytes directly to object storage. The
// URL's embedded signature is the credential: no bearer header, no token
// manager involvement.
func (c *Client) UploadToPresignedURL(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build upload request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		// Object storage rejections (expired signature included) are
		// transient from the pipeline's view: it restarts from presign.
		return apperrors.New(apperrors.ErrServer,
			fmt.Sprintf("direct upload failed with status %d: %s", resp.StatusCode, string(data)))
	}
	return nil
}

// RegisterRequest notifies the authority about an uploaded object.
type RegisterRequest struct {
	MediaKey       string      `json:"storage_key"`
	ProjectID      models.UUID `json:"project_id"`
	MediaType      string      `json:"media_type"`
	Filename       string      `json:"filename"`
	ContentType    string      `json:"content_type"`
	SizeBytes      int64       `json:"size_bytes"`
	Latitude       float64     `json:"latitude,omitempty"`
	Longitude      float64     `json:"longitude,omitempty"`
	HasGeotag      bool        `json:"has_geotag"`
	ReportServerID string      `json:"progress_id,omitempty"`
	IdempotencyKey string      `json:"-"`
}

// MediaResult is the canonical media record.
type MediaResult struct {
	MediaID    string `json:"media_id"`
	StorageKey string `json:"storage_key"`
}

// RegisterMedia registers an uploaded object and yields the canonical media
// identifier.
func (c *Client) RegisterMedia(ctx context.Context, req RegisterRequest) (*MediaResult, error) {
	var result MediaResult
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	if err := c.doJSON(ctx, http.MethodPost, "/media/register", headers, req, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// =====================================================
// GPS Tracks
// =====================================================

// TrackPointUpload is one waypoint in a batch upload.
type TrackPointUpload struct {
	RecordedAt int64   `json:"recorded_at"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AccuracyM  float64 `json:"accuracy_m"`
}

// TrackBatch is a batch of waypoints for one project.
type TrackBatch struct {
	ProjectID      models.UUID        `json:"project_id"`
	ReportServerID string             `json:"progress_id,omitempty"`
	Points         []TrackPointUpload `json:"waypoints"`
}

// UploadTrackPoints uploads a waypoint batch. Accepted batches return the
// number of stored points.
func (c *Client) UploadTrackPoints(ctx context.Context, batch TrackBatch) (int, error) {
	var result struct {
		Accepted int `json:"accepted"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/gps-tracks/batch", nil, batch, &result, true); err != nil {
		return 0, err
	}
	return result.Accepted, nil
}

// =====================================================
// Mirror Refresh
// =====================================================

// FetchProjects returns the projects visible to the logged-in user, for
// refreshing the local mirror after a drain.
func (c *Client) FetchProjects(ctx context.Context) ([]*models.Project, error) {
	var result []*models.Project
	if err := c.doJSON(ctx, http.MethodGet, "/projects", nil, nil, &result, true); err != nil {
		return nil, err
	}
	return result, nil
}

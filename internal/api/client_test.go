// Package api provides unit tests for the remote-authority client.
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	apperrors "github.com/wirasto/fieldsync/internal/errors"
	"github.com/wirasto/fieldsync/internal/models"
)

// staticTokens is an oauth2.TokenSource returning a fixed token.
type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) Token() (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token}, nil
}

func newTestClient(serverURL string, tokens oauth2.TokenSource) *Client {
	return NewClient(Config{
		BaseURL:           serverURL,
		RequestsPerSecond: 1000, // don't throttle tests
	}, tokens)
}

// TestAuthedCallCarriesBearer tests bearer injection and the idempotency
// key header on report creation.
func TestAuthedCallCarriesBearer(t *testing.T) {
	var gotAuth, gotIdem string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"progress_id": "pr-001", "project_id": "p1", "reported_percent": 40}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{token: "tok-1"})

	result, err := client.CreateProgressReport(context.Background(), "p1",
		models.ReportCreatePayload{ProjectID: "p1", ReportedPercent: 40, ReportDate: "2026-08-30"},
		"idem-123")
	if err != nil {
		t.Fatalf("CreateProgressReport failed: %v", err)
	}

	if result.ProgressID != "pr-001" {
		t.Errorf("Expected server ID pr-001, got %q", result.ProgressID)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
	if gotIdem != "idem-123" {
		t.Errorf("Expected idempotency key header, got %q", gotIdem)
	}
}

// TestLoginIsExemptFromBearer tests that login never consults the token
// provider.
func TestLoginIsExemptFromBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Login request must not carry a bearer header")
		}
		w.Write([]byte(`{"access_token": "at", "refresh_token": "rt", "expires_in": 3600,
			"user": {"user_id": "u1", "username": "siti"}}`))
	}))
	defer server.Close()

	tokens := &staticTokens{token: "should-not-be-used"}
	client := newTestClient(server.URL, tokens)

	result, err := client.Login(context.Background(), LoginRequest{Username: "siti", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokens.calls != 0 {
		t.Errorf("Token provider consulted %d times for login", tokens.calls)
	}
	if result.User.Username != "siti" {
		t.Errorf("Unexpected user: %+v", result.User)
	}

	pair := result.TokenPair()
	if pair.AccessToken != "at" || pair.RefreshToken != "rt" {
		t.Errorf("Unexpected token pair: %+v", pair)
	}
	if pair.ExpiresAt.IsZero() {
		t.Error("Expected expiry hint from expires_in")
	}
}

// TestStatusClassification tests mapping of response statuses to the error
// taxonomy.
func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusUnauthorized, apperrors.IsAuth, "auth"},
		{http.StatusBadRequest, apperrors.IsPermanent, "validation"},
		{http.StatusConflict, apperrors.IsPermanent, "conflict"},
		{http.StatusTooManyRequests, apperrors.IsTransient, "rate limited"},
		{http.StatusInternalServerError, apperrors.IsTransient, "server error"},
		{http.StatusServiceUnavailable, apperrors.IsTransient, "unavailable"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				w.Write([]byte(`{"detail": "reason from server"}`))
			}))
			defer server.Close()

			client := newTestClient(server.URL, &staticTokens{token: "t"})
			_, err := client.PresignMedia(context.Background(), PresignRequest{
				ProjectID: "p1", MediaType: "photo", Filename: "a.jpg", ContentType: "image/jpeg",
			})
			if err == nil {
				t.Fatal("Expected error")
			}
			if !c.check(err) {
				t.Errorf("Status %d misclassified: %v", c.status, err)
			}
			if !strings.Contains(err.Error(), "reason from server") {
				t.Errorf("Server detail lost: %v", err)
			}
		})
	}
}

// TestTransportFailureIsTransient tests that an unreachable host classifies
// as a transient network error.
func TestTransportFailureIsTransient(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", &staticTokens{token: "t"})

	_, err := client.FetchProjects(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if !apperrors.IsTransient(err) {
		t.Errorf("Transport failure misclassified: %v", err)
	}
}

// TestUploadToPresignedURLSkipsBearer tests that direct uploads never carry
// a bearer header and stream the exact content type.
func TestUploadToPresignedURLSkipsBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Presigned upload must not carry a bearer header")
		}
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("Unexpected content type %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "never"}
	client := newTestClient(server.URL, tokens)

	body := strings.NewReader("jpeg-bytes")
	err := client.UploadToPresignedURL(context.Background(), server.URL+"/bucket/key?sig=abc",
		"image/jpeg", body, int64(body.Len()))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if tokens.calls != 0 {
		t.Errorf("Token provider consulted %d times for a presigned upload", tokens.calls)
	}
}

// TestUploadRejectionIsRetryable tests that a storage rejection (e.g. an
// expired signature) comes back transient so the pipeline re-presigns.
func TestUploadRejectionIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden) // expired signature
	}))
	defer server.Close()

	client := newTestClient(server.URL, &staticTokens{})
	err := client.UploadToPresignedURL(context.Background(), server.URL+"/k", "image/jpeg",
		strings.NewReader("x"), 1)
	if err == nil {
		t.Fatal("Expected error")
	}
	if !apperrors.IsTransient(err) {
		t.Errorf("Upload rejection must be transient, got: %v", err)
	}
}

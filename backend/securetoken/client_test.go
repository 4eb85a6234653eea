package securetoken_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/backend/securetoken"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T, handler http.HandlerFunc) *securetoken.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return securetoken.New(securetoken.WithBaseURL(srv.URL+"/v1/token"), securetoken.WithHTTPClient(srv.Client()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_RefreshToken(t *testing.T) {
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "api-key", r.URL.Query().Get("key"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-2",
			"id_token":      "id-2",
			"refresh_token": "rt-2",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"user_id":       "uid-1",
		})
	})

	before := time.Now()
	resp, err := client.RefreshToken(context.Background(), &backend.RefreshRequest{
		Config:       backend.RequestConfig{APIKey: "api-key"},
		RefreshToken: "rt-1",
	})
	require.NoError(t, err)
	require.Equal(t, "id-2", resp.AccessToken)
	require.Equal(t, "rt-2", resp.RefreshToken)
	require.Equal(t, "uid-1", resp.UserID)
	require.WithinDuration(t, before.Add(time.Hour), resp.ExpiresAt, 5*time.Second)
}

func TestClient_RefreshTokenKeepsRefreshToken(t *testing.T) {
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	resp, err := client.RefreshToken(context.Background(), &backend.RefreshRequest{RefreshToken: "rt-1"})
	require.NoError(t, err)
	require.Equal(t, "access-2", resp.AccessToken)
	require.Empty(t, resp.RefreshToken)
}

func TestClient_RefreshTokenErrors(t *testing.T) {
	tests := []struct {
		name string
		body any
		want backend.Code
	}{
		{
			name: "service error",
			body: map[string]any{"error": map[string]any{"code": 400, "message": "TOKEN_EXPIRED"}},
			want: backend.CodeTokenExpired,
		},
		{
			name: "service error with detail",
			body: map[string]any{"error": map[string]any{"code": 400, "message": "USER_DISABLED : account disabled"}},
			want: backend.CodeUserDisabled,
		},
		{
			name: "oauth error",
			body: map[string]any{"error": "INVALID_REFRESH_TOKEN", "error_description": "bad"},
			want: backend.CodeInvalidRefreshToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, tt.body)
			})

			_, err := client.RefreshToken(context.Background(), &backend.RefreshRequest{RefreshToken: "rt-1"})
			require.Error(t, err)
			require.Equal(t, tt.want, backend.CodeOf(err))
		})
	}
}

func TestClient_EmptyRefreshToken(t *testing.T) {
	client := securetoken.New()
	_, err := client.RefreshToken(context.Background(), &backend.RefreshRequest{})
	require.Equal(t, backend.CodeInvalidRefreshToken, backend.CodeOf(err))
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := securetoken.New(securetoken.WithBaseURL(url))
	_, err := client.RefreshToken(context.Background(), &backend.RefreshRequest{RefreshToken: "rt-1"})
	require.Equal(t, backend.CodeNetworkRequestFailed, backend.CodeOf(err))
}

func TestClient_TokenURL(t *testing.T) {
	client := securetoken.New()
	require.Equal(t, "https://securetoken.googleapis.com/v1/token?key=abc",
		client.TokenURL(backend.RequestConfig{APIKey: "abc"}))
	require.Equal(t, "http://localhost:9099/securetoken.googleapis.com/v1/token?key=abc",
		client.TokenURL(backend.RequestConfig{APIKey: "abc", EmulatorHost: "localhost:9099"}))
}

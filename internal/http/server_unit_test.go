package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"helpdesk/internal/auth"
	"helpdesk/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		HTTPAddr:       ":0",
		JWTSecret:      "test-secret",
		JWTIssuer:      "test-issuer",
		AccessTokenTTL: 24 * time.Hour,
	}
}

func testToken(t *testing.T, cfg config.Config, ttl time.Duration, username, role string) string {
	t.Helper()
	token, err := auth.NewAccessToken(cfg.JWTSecret, cfg.JWTIssuer, ttl, auth.Claims{
		AccountID: "acc-" + username,
		Username:  username,
		Role:      role,
		Name:      "Test " + username,
	})
	require.NoError(t, err)
	return token
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer abc"))
	require.Equal(t, "", bearerToken(""))
	require.Equal(t, "", bearerToken("Bearer"))
	require.Equal(t, "", bearerToken("Token abc"))
}

func TestAuthMiddlewareRejections(t *testing.T) {
	cfg := testConfig()
	server := NewServer(cfg, nil, nil)
	app := httptest.NewServer(server.Router())
	defer app.Close()

	cases := []struct {
		name      string
		header    string
		wantError string
	}{
		{"no header", "", "missing_token"},
		{"wrong scheme", "Token abc", "missing_token"},
		{"garbage token", "Bearer not-a-token", "invalid_token"},
		{"wrong secret", "Bearer " + mustForeignToken(t), "invalid_token"},
		{"expired", "Bearer " + testToken(t, cfg, -time.Minute, "stu1", "student"), "token_expired"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, app.URL+"/api/user/profile", nil)
			require.NoError(t, err)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tc.wantError, body["error"])
		})
	}
}

func mustForeignToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewAccessToken("another-secret", "other", time.Minute, auth.Claims{
		AccountID: "acc-x",
		Username:  "x",
		Role:      "student",
	})
	require.NoError(t, err)
	return token
}

func TestProfileEchoesClaims(t *testing.T) {
	cfg := testConfig()
	server := NewServer(cfg, nil, nil)
	app := httptest.NewServer(server.Router())
	defer app.Close()

	req, err := http.NewRequest(http.MethodGet, app.URL+"/api/user/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken(t, cfg, time.Minute, "stu1", "student"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		User map[string]string `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "stu1", body.User["username"])
	require.Equal(t, "student", body.User["role"])
}

func TestRoleGate(t *testing.T) {
	cfg := testConfig()
	server := NewServer(cfg, nil, nil)
	app := httptest.NewServer(server.Router())
	defer app.Close()

	// Non-admin hits the role gate before any storage access.
	req, err := http.NewRequest(http.MethodDelete, app.URL+"/api/users/someone", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken(t, cfg, time.Minute, "stu1", "student"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Self-delete is refused regardless of role.
	req, err = http.NewRequest(http.MethodDelete, app.URL+"/api/users/adm1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken(t, cfg, time.Minute, "adm1", "admin"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "cannot_delete_self", body["error"])
}

func TestLoginValidation(t *testing.T) {
	cfg := testConfig()
	server := NewServer(cfg, nil, nil)
	app := httptest.NewServer(server.Router())
	defer app.Close()

	cases := []map[string]string{
		{},
		{"username": "stu1"},
		{"password": "pw123"},
	}
	for _, payload := range cases {
		buf, err := json.Marshal(payload)
		require.NoError(t, err)
		resp, err := http.Post(app.URL+"/api/auth/login", "application/json", bytes.NewReader(buf))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	cfg := testConfig()
	server := NewServer(cfg, nil, nil)
	app := httptest.NewServer(server.Router())
	defer app.Close()

	post := func(payload map[string]interface{}, token string) *http.Response {
		buf, err := json.Marshal(payload)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, app.URL+"/api/users", bytes.NewReader(buf))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	// Missing fields.
	resp := post(map[string]interface{}{"username": "x"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown role tag.
	resp = post(map[string]interface{}{
		"username": "x", "name": "X", "email": "x@campus.edu", "role": "root", "password": "pw",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Admin creation needs a token.
	adminPayload := map[string]interface{}{
		"username": "x", "name": "X", "email": "x@campus.edu", "role": "admin", "password": "pw",
	}
	resp = post(adminPayload, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// ...and the token must carry the admin role.
	resp = post(adminPayload, testToken(t, cfg, time.Minute, "stu1", "student"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginThrottleDisabledWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.LoginMaxAttempts = 1
	server := NewServer(cfg, nil, nil)

	require.False(t, server.loginBlocked(context.Background(), "stu1", "127.0.0.1"))
	server.recordLoginFailure(context.Background(), "stu1", "127.0.0.1")
	require.False(t, server.loginBlocked(context.Background(), "stu1", "127.0.0.1"))
}

package bolide

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFacade_NewClient tests client creation with various options.
func TestFacade_NewClient(t *testing.T) {
	tests := []struct {
		name      string
		options   []Option
		expectErr bool
	}{
		{
			name: "valid configuration",
			options: []Option{
				WithEndpoint("http://localhost:18000"),
				WithRefreshInterval(5 * time.Minute),
			},
			expectErr: false,
		},
		{
			name: "with all feed options",
			options: []Option{
				WithEndpoint("http://localhost:18000"),
				WithAPIKey("DEMO_KEY"),
				WithFetchTimeout(10 * time.Second),
				WithMaxRetries(5, time.Second),
				WithRefreshInterval(5 * time.Minute),
				WithInitialTimeout(10 * time.Second),
				WithCircuitBreaker(5, 30*time.Second),
			},
			expectErr: false,
		},
		{
			name: "with filtering",
			options: []Option{
				WithEndpoint("http://localhost:18000"),
				WithHazardousOnly(true),
				WithMinDiameter(0.14),
				WithOrbitingBodies("Earth", "Moon"),
				WithApproachWindow(30 * 24 * time.Hour),
			},
			expectErr: false,
		},
		{
			name: "with watch rules",
			options: []Option{
				WithEndpoint("http://localhost:18000"),
				WithWatchRule("close-pass", "miss_distance_lunar < 1.0"),
				WithWatchRule("big-one", "diameter_mean_km > 1.0"),
				WithOnAlert(func(Alert) {}),
			},
			expectErr: false,
		},
		{
			name: "with origin and classifier",
			options: []Option{
				WithOrigin("https://neo.example.com"),
				WithEnvClassifier(LoopbackClassifier),
				WithDevFallback("http://localhost:18000"),
			},
			expectErr: false,
		},
		{
			name: "with embedded servers",
			options: []Option{
				WithEndpoint("http://localhost:18000"),
				WithAdminServer(AdminConfig{Port: 0, Token: "admin-token"}),
				WithWebhookServer(WebhookConfig{Port: 0, Secret: "webhook-secret"}),
			},
			expectErr: false,
		},
		{
			name: "missing endpoint and origin",
			options: []Option{
				WithRefreshInterval(5 * time.Minute),
			},
			expectErr: true,
		},
		{
			name: "watch rule does not compile",
			options: []Option{
				WithEndpoint("http://localhost:18000"),
				WithWatchRule("broken", "hazardous &&"),
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.options...)

			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, client)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

// TestFacade_WithConfig tests using a Config struct.
func TestFacade_WithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feed.Endpoint = "http://localhost:18000"
	cfg.Cache.RefreshInterval = 10 * time.Minute
	cfg.Cache.Filter.OnlyHazardous = true
	cfg.Cache.Filter.MinDiameterKm = 0.14
	cfg.Admin.Port = 0
	cfg.Admin.Token = "admin-token"

	client, err := New(WithConfig(cfg))

	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotNil(t, client.cache)
}

// TestFacade_ConfigFile tests the config file path from YAML to a running client.
func TestFacade_ConfigFile(t *testing.T) {
	server := NewMockFeedServer(t)
	defer server.Close()

	server.AddObject(hazardousObject("2099942", "99942 Apophis (2004 MN4)"))

	yaml := `feed:
  endpoint: ` + server.URL + `
  max_retries: 1
  retry_backoff: 0s
cache:
  refresh_interval: 0s
`
	path := filepath.Join(t.TempDir(), "bolide.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	client, err := New(WithConfig(cfg), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Start(ctx))
	defer client.Close()

	objects, err := client.Objects(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

// adminBase turns a bound listen address into a dialable base URL
func adminBase(t *testing.T, addr string) string {
	t.Helper()

	require.NotEmpty(t, addr)
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	return "http://127.0.0.1:" + port
}

// adminDo issues a request against the admin API with optional bearer auth
func adminDo(t *testing.T, method, url, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// TestFacade_AdminServer tests the embedded admin API end to end.
func TestFacade_AdminServer(t *testing.T) {
	server := NewMockFeedServer(t)
	defer server.Close()

	server.AddObject(hazardousObject("2099942", "99942 Apophis (2004 MN4)"))
	server.AddObject(hazardousObject("3542519", "(2010 PK9)"))

	const token = "test-admin-token"

	client := newTestClient(t, server, WithAdminServer(AdminConfig{Port: 0, Token: token}))

	ctx := context.Background()
	require.NoError(t, client.Start(ctx))
	defer client.Close()

	base := adminBase(t, client.AdminAddr())

	t.Run("health is open", func(t *testing.T) {
		resp := adminDo(t, http.MethodGet, base+"/health", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("stats require auth", func(t *testing.T) {
		resp := adminDo(t, http.MethodGet, base+"/admin/stats", "")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = adminDo(t, http.MethodGet, base+"/admin/stats", "wrong-token")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp := adminDo(t, http.MethodGet, base+"/admin/stats", token)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Equal(t, float64(2), stats["LastFeedTotal"])
		assert.Equal(t, "closed", stats["CircuitState"])
	})

	t.Run("invalidate needs an id", func(t *testing.T) {
		resp := adminDo(t, http.MethodPost, base+"/admin/invalidate", token)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalidate rejects GET", func(t *testing.T) {
		resp := adminDo(t, http.MethodGet, base+"/admin/invalidate?id=3542519", token)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("invalidate one", func(t *testing.T) {
		resp := adminDo(t, http.MethodPost, base+"/admin/invalidate?id=3542519", token)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		objects, err := client.Objects(ctx)
		require.NoError(t, err)
		assert.Len(t, objects, 1)
	})

	t.Run("refresh", func(t *testing.T) {
		server.AddObject(hazardousObject("54016476", "(2020 SO)"))

		resp := adminDo(t, http.MethodPost, base+"/admin/refresh", token)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		objects, err := client.Objects(ctx)
		require.NoError(t, err)
		assert.Len(t, objects, 3)
	})

	t.Run("invalidate all", func(t *testing.T) {
		resp := adminDo(t, http.MethodPost, base+"/admin/invalidate-all", token)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		objects, err := client.Objects(ctx)
		require.NoError(t, err)
		assert.Empty(t, objects)
	})
}

// signPayload computes the hex HMAC-SHA256 the webhook server expects
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// postWebhook sends a payload to the webhook endpoint, signed when secret is set
func postWebhook(t *testing.T, url, secret string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Bolide-Signature", signPayload(secret, body))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// TestFacade_Webhook tests the embedded webhook server end to end.
func TestFacade_Webhook(t *testing.T) {
	server := NewMockFeedServer(t)
	defer server.Close()

	server.AddObject(hazardousObject("2099942", "99942 Apophis (2004 MN4)"))
	server.AddObject(hazardousObject("3542519", "(2010 PK9)"))

	const secret = "test-webhook-secret"

	client := newTestClient(t, server, WithWebhookServer(WebhookConfig{Port: 0, Secret: secret}))

	ctx := context.Background()
	require.NoError(t, client.Start(ctx))
	defer client.Close()

	url := adminBase(t, client.WebhookAddr()) + "/webhook"

	payload := func(event string, ids ...string) []byte {
		body, err := json.Marshal(map[string]any{
			"event":      event,
			"object_ids": ids,
			"timestamp":  time.Now().Format(time.RFC3339),
		})
		require.NoError(t, err)
		return body
	}

	t.Run("unsigned request rejected", func(t *testing.T) {
		resp := postWebhook(t, url, "", payload("object.updated", "2099942"))
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		resp := postWebhook(t, url, "some-other-secret", payload("object.updated", "2099942"))
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		resp := postWebhook(t, url, secret, []byte("{not json"))
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("GET rejected", func(t *testing.T) {
		resp, err := http.Get(url)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("object update invalidates", func(t *testing.T) {
		resp := postWebhook(t, url, secret, payload("object.updated", "3542519"))
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.NotEmpty(t, body["event_id"])

		objects, err := client.Objects(ctx)
		require.NoError(t, err)
		assert.Len(t, objects, 1)
	})

	t.Run("feed update resyncs", func(t *testing.T) {
		server.AddObject(hazardousObject("54016476", "(2020 SO)"))

		resp := postWebhook(t, url, secret, payload("feed.updated"))
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		objects, err := client.Objects(ctx)
		require.NoError(t, err)
		assert.Len(t, objects, 3)
	})

	t.Run("unknown event ignored", func(t *testing.T) {
		resp := postWebhook(t, url, secret, payload("feed.deleted"))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

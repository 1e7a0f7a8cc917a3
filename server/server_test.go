package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap/zaptest"

	"github.com/yunaworks/dearbot/config"
	"github.com/yunaworks/dearbot/server/kakao"
	"github.com/yunaworks/dearbot/server/middleware"
	"github.com/yunaworks/dearbot/server/mocks"
)

func newTestServer(t *testing.T, llm gollm.LLM) http.Handler {
	t.Helper()
	middleware.ResetRateLimiters()

	logger := zaptest.NewLogger(t)
	watcher := config.NewStaticWatcher(config.DefaultConfig(), logger)
	srv, err := NewServerWithBackend(watcher, llm, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Deliverer().Shutdown(ctx)
	})
	return srv.httpServer.Handler
}

func TestRouterOperationalEndpoints(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{"liveness", http.MethodGet, "/", http.StatusOK, `"ok":true`},
		{"liveness head", http.MethodHead, "/", http.StatusOK, ""},
		{"health", http.MethodGet, "/health", http.StatusOK, `"status":"ok"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "dearbot_http_requests_total"},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, ""},
		{"wrong method on skill endpoint", http.MethodGet, "/bot/respond", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouterSkillEndpointBothPaths(t *testing.T) {
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "안녕, 자기야!", nil
	})
	h := newTestServer(t, mockLLM)

	for _, path := range []string{"/bot/respond", "/bot/respond/"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"userRequest":{"utterance":"안녕"}}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)

			var resp kakao.SkillResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, kakao.Version, resp.Version)
			require.NotNil(t, resp.Template)
			assert.Equal(t, "안녕, 자기야!", resp.Template.Outputs[0].SimpleText.Text)
		})
	}
}

func TestRouterSetsRequestID(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/bot/respond", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRateLimit(t *testing.T) {
	h := newTestServer(t, nil)

	var lastCode int
	for i := 0; i < 31; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

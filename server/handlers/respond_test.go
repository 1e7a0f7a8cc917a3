package handlers

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
	"github.com/yunaworks/dearbot/server/dispatch"
	"github.com/yunaworks/dearbot/server/kakao"
	"github.com/yunaworks/dearbot/server/metrics"
	"github.com/yunaworks/dearbot/server/mocks"
)

func newTestHandler(t *testing.T, llm gollm.LLM, mutate func(*config.Config)) *RespondHandler {
	t.Helper()

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := zaptest.NewLogger(t)
	watcher := config.NewStaticWatcher(cfg, logger)
	m := metrics.NewMetrics()
	d := dispatch.NewDispatcher(llm, watcher, m, logger)
	dl := dispatch.NewDeliverer(d, watcher, m, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = dl.Shutdown(ctx)
	})
	return NewRespondHandler(d, dl, watcher, m, logger)
}

func postRespond(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, kakao.SkillResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/bot/respond", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp kakao.SkillResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, kakao.Version, resp.Version)
	return rec, resp
}

func simpleText(t *testing.T, resp kakao.SkillResponse) string {
	t.Helper()
	require.NotNil(t, resp.Template)
	require.Len(t, resp.Template.Outputs, 1)
	return resp.Template.Outputs[0].SimpleText.Text
}

func TestRespondSynchronous(t *testing.T) {
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "고생 많았어, 자기야.", nil
	})
	h := newTestHandler(t, mockLLM, nil)

	_, resp := postRespond(t, h, `{"userRequest":{"utterance":"오늘 너무 힘들었어"}}`)

	assert.False(t, resp.UseCallback)
	assert.Equal(t, "고생 많았어, 자기야.", simpleText(t, resp))
}

func TestRespondEmptyUtterance(t *testing.T) {
	upstreamCalled := false
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		upstreamCalled = true
		return "답", nil
	})
	h := newTestHandler(t, mockLLM, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing utterance", `{"userRequest":{}}`},
		{"whitespace only", `{"userRequest":{"utterance":"   "}}`},
		{"missing envelope", `{"foo":"bar"}`},
		{"malformed json", `{"userRequest":`},
		{"empty body", ``},
		{"empty utterance with callback url", `{"userRequest":{"utterance":"","callbackUrl":"https://example.com/cb"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := postRespond(t, h, tt.body)
			assert.False(t, resp.UseCallback)
			assert.Equal(t, config.DefaultConfig().Bot.Messages.Repeat, simpleText(t, resp))
		})
	}
	assert.False(t, upstreamCalled, "empty input must never reach the upstream")
}

func TestRespondUpstreamFailure(t *testing.T) {
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "", assert.AnError
	})
	h := newTestHandler(t, mockLLM, nil)

	_, resp := postRespond(t, h, `{"userRequest":{"utterance":"안녕"}}`)

	assert.Equal(t, config.DefaultConfig().Bot.Messages.Fallback, simpleText(t, resp))
}

func TestRespondMissingCredential(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	_, resp := postRespond(t, h, `{"userRequest":{"utterance":"안녕"}}`)

	assert.Equal(t, config.DefaultConfig().Bot.Messages.MissingKey, simpleText(t, resp))
}

func TestRespondCallbackMode(t *testing.T) {
	received := make(chan kakao.SkillResponse, 1)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cb kakao.SkillResponse
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cb))
		received <- cb
	}))
	defer callback.Close()

	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "기다려줘서 고마워!", nil
	})
	h := newTestHandler(t, mockLLM, nil)

	_, resp := postRespond(t, h, `{"userRequest":{"utterance":"천천히 대답해줘","callbackUrl":"`+callback.URL+`"}}`)

	assert.True(t, resp.UseCallback)
	assert.Nil(t, resp.Template)

	select {
	case cb := <-received:
		assert.Equal(t, "기다려줘서 고마워!", simpleText(t, cb))
	case <-time.After(3 * time.Second):
		t.Fatal("callback was never delivered")
	}
}

func TestRespondCallbackQueueFullFallsBackToSync(t *testing.T) {
	release := make(chan struct{})
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer callback.Close()
	defer close(release)

	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "동기 답변이야", nil
	})
	h := newTestHandler(t, mockLLM, func(cfg *config.Config) {
		cfg.Bot.Workers = 1
		cfg.Bot.QueueSize = 1
	})

	// Occupy the single worker and fill the queue.
	postRespond(t, h, `{"userRequest":{"utterance":"하나","callbackUrl":"`+callback.URL+`"}}`)
	postRespond(t, h, `{"userRequest":{"utterance":"둘","callbackUrl":"`+callback.URL+`"}}`)

	assert.Eventually(t, func() bool {
		_, resp := postRespond(t, h, `{"userRequest":{"utterance":"셋","callbackUrl":"`+callback.URL+`"}}`)
		return !resp.UseCallback && resp.Template != nil &&
			resp.Template.Outputs[0].SimpleText.Text == "동기 답변이야"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRespondSurvivesPanic(t *testing.T) {
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		panic("completion backend went sideways")
	})
	h := newTestHandler(t, mockLLM, nil)

	_, resp := postRespond(t, h, `{"userRequest":{"utterance":"안녕"}}`)

	assert.Equal(t, config.DefaultConfig().Bot.Messages.Fallback, simpleText(t, resp))
}

func TestHealthEndpoints(t *testing.T) {
	rec := httptest.NewRecorder()
	Liveness()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

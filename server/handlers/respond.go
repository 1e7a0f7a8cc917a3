// Package handlers provides the HTTP handlers for the dearbot skill server:
// the webhook respond endpoint and the liveness/health endpoints.
//
// The respond handler follows one rule above all others: the chat platform
// must always receive HTTP 200 with a well-formed skill envelope. Failures
// are converted to fixed platform-safe replies here or in the dispatcher;
// nothing escapes the handler boundary unformatted.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/yunaworks/dearbot/config"
	"github.com/yunaworks/dearbot/server/dispatch"
	"github.com/yunaworks/dearbot/server/kakao"
	"github.com/yunaworks/dearbot/server/metrics"
	"github.com/yunaworks/dearbot/server/middleware"
)

// RespondHandler handles the inbound skill webhook. It normalizes the
// payload, short-circuits empty input, and selects the dispatch mode from
// the presence of a callback URL.
type RespondHandler struct {
	dispatcher *dispatch.Dispatcher
	deliverer  *dispatch.Deliverer
	cfg        config.Watcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewRespondHandler creates the webhook handler. All dependencies are
// required.
func NewRespondHandler(d *dispatch.Dispatcher, dl *dispatch.Deliverer, cfg config.Watcher, m *metrics.Metrics, logger *zap.Logger) *RespondHandler {
	return &RespondHandler{
		dispatcher: d,
		deliverer:  dl,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *RespondHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	cfg := h.cfg.GetCurrentConfig()

	logger := h.logger.With(
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)

	// Last line of defense: an unexpected fault inside this handler still
	// answers with a well-formed envelope, never a bare 500.
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("respond handler panic", zap.Any("panic", rec))
			h.metrics.ErrorsTotal.WithLabelValues("handler_panic").Inc()
			h.writeEnvelope(w, logger, kakao.SimpleTextResponse(cfg.Bot.Messages.Fallback))
		}
	}()

	payload := kakao.ParsePayload(r.Body)
	utterance := payload.Utterance()

	// Empty or unreadable input: fixed repeat prompt, no upstream call,
	// and no callback task even when a callback URL is present.
	if utterance == "" {
		h.metrics.CompletionsTotal.WithLabelValues("none", "repeat").Inc()
		logger.Info("empty utterance, asking user to repeat")
		h.writeEnvelope(w, logger, kakao.SimpleTextResponse(cfg.Bot.Messages.Repeat))
		return
	}

	if callbackURL := payload.CallbackURL(); callbackURL != "" {
		if h.deliverer.Enqueue(callbackURL, utterance, requestID) {
			logger.Info("callback mode accepted",
				zap.Int("utterance_len", len(utterance)),
			)
			h.writeEnvelope(w, logger, kakao.CallbackWaitResponse())
			return
		}
		// Queue full or shutting down: don't promise a callback we cannot
		// keep, answer inline instead.
		logger.Warn("callback queue rejected job, falling back to synchronous mode")
	}

	outcome := h.dispatcher.ReplySync(r.Context(), utterance)
	if outcome.Fallback {
		logger.Info("synchronous reply used fallback", zap.String("reason", outcome.Reason))
	}
	h.writeEnvelope(w, logger, kakao.SimpleTextResponse(outcome.Text))
}

// writeEnvelope serializes a skill envelope with status 200.
func (h *RespondHandler) writeEnvelope(w http.ResponseWriter, logger *zap.Logger, resp kakao.SkillResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode skill envelope", zap.Error(err))
	}
}

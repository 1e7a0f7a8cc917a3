// Package dispatch implements the completion dispatcher: the timing and
// delivery strategy that satisfies the chat platform's hard response-time
// budget against an upstream completion API whose latency is not under this
// system's control.
//
// Two operating modes, selected per request by the presence of a callback
// URL. Synchronous mode blocks the HTTP response under a budget strictly
// below the platform ceiling and substitutes a fixed fallback on any
// failure. Asynchronous mode acknowledges immediately and hands the
// generation plus outbound delivery to a detached worker with its own,
// longer timeout (see callback.go).
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yunaworks/dearbot/config"
	"github.com/yunaworks/dearbot/server/metrics"
	"github.com/yunaworks/dearbot/server/persona"
	"github.com/yunaworks/dearbot/server/processing"
)

// Dispatcher coordinates prompt composition, the upstream completion call,
// and response formatting. It is safe for concurrent use; all mutable
// state lives in the breaker and the singleflight group.
type Dispatcher struct {
	llm      gollm.LLM // nil when no API credential is configured
	cfg      config.Watcher
	composer *persona.Composer
	breaker  *gobreaker.CircuitBreaker
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. llm may be nil when no credential is
// configured; every dispatch then answers with the fixed configuration-error
// message instead of crashing.
func NewDispatcher(llm gollm.LLM, cfg config.Watcher, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		llm:      llm,
		cfg:      cfg,
		composer: persona.NewComposer(cfg.GetCurrentConfig().Bot.Persona, cfg.GetCurrentConfig().Bot.Profile),
		metrics:  m,
		logger:   logger,
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("completion breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.BreakerState.Set(breakerStateValue(to))
		},
	})

	return d
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// ReplySync produces the inline answer for synchronous mode. The completion
// call runs under the configured synchronous budget; on timeout the call is
// abandoned, not merely ignored, and the fixed fallback is returned. Every
// failure converts to a platform-safe outcome.
func (d *Dispatcher) ReplySync(ctx context.Context, utterance string) Outcome {
	cfg := d.cfg.GetCurrentConfig()

	ctx, cancel := context.WithTimeout(ctx, cfg.Bot.SyncTimeout)
	defer cancel()

	outcome := d.reply(ctx, "sync", utterance, cfg)
	d.metrics.CompletionsTotal.WithLabelValues("sync", resultLabel(outcome)).Inc()
	return outcome
}

// ReplyDetached produces the answer for the detached callback path. The
// caller owns the context; it must not be derived from the triggering
// request, which has already been answered.
func (d *Dispatcher) ReplyDetached(ctx context.Context, utterance string) Outcome {
	cfg := d.cfg.GetCurrentConfig()

	ctx, cancel := context.WithTimeout(ctx, cfg.Bot.AsyncTimeout)
	defer cancel()

	outcome := d.reply(ctx, "async", utterance, cfg)
	d.metrics.CompletionsTotal.WithLabelValues("async", resultLabel(outcome)).Inc()
	return outcome
}

func resultLabel(o Outcome) string {
	if !o.Fallback {
		return "answer"
	}
	return o.Reason
}

// reply runs the normalizer-checked utterance through compose → generate →
// format. mode participates in the singleflight key so the two budgets
// never share a flight.
func (d *Dispatcher) reply(ctx context.Context, mode, utterance string, cfg *config.Config) Outcome {
	if utterance == "" {
		return fallback(cfg.Bot.Messages.Repeat, "empty_input")
	}

	if d.llm == nil {
		d.logger.Error("completion credential not configured",
			zap.String("mode", mode),
		)
		return fallback(cfg.Bot.Messages.MissingKey, "missing_credential")
	}

	tone := persona.Classify(utterance)
	turns := d.composer.Compose(utterance, tone)

	if tokens := d.composer.PromptTokens(turns); tokens > 0 {
		d.metrics.PromptTokens.Observe(float64(tokens))
	}

	start := time.Now()
	raw, err := d.generate(ctx, mode+"\n"+utterance, turns)
	d.metrics.CompletionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if err != nil {
		reason := failureReason(ctx, err)
		d.logger.Warn("completion failed",
			zap.String("mode", mode),
			zap.String("reason", reason),
			zap.String("tone", tone.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return fallback(cfg.Bot.Messages.Fallback, reason)
	}

	formatter := processing.NewFormatter(cfg.Bot.MaxLines, cfg.Bot.Messages.Empty)
	return answer(formatter.Format(raw))
}

// generate performs the upstream call through the singleflight group and the
// circuit breaker. Concurrent identical utterances in the same mode share a
// single upstream flight.
func (d *Dispatcher) generate(ctx context.Context, key string, turns []gollm.PromptMessage) (string, error) {
	v, err, shared := d.group.Do(key, func() (interface{}, error) {
		return d.breaker.Execute(func() (interface{}, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return d.llm.Generate(ctx, &gollm.Prompt{Messages: turns})
		})
	})
	if shared {
		d.logger.Debug("completion deduplicated in flight")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// failureReason classifies an upstream failure for logging and metrics.
func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "provider_error"
	}
}


package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/queue/v2"
	"go.uber.org/zap"

	"github.com/yunaworks/dearbot/config"
	"github.com/yunaworks/dearbot/server/kakao"
	"github.com/yunaworks/dearbot/server/metrics"
)

// job is one queued callback delivery: generate an answer for the utterance,
// then POST it to the platform-supplied URL.
type job struct {
	url       string
	utterance string
	requestID string
	enqueued  time.Time
}

// Deliverer owns the asynchronous delivery path. Accepted jobs live in a
// bounded FIFO queue drained by worker goroutines. The work is detached from
// the triggering HTTP request: the request has already been answered with
// the useCallback acknowledgment, so each worker carries its own timeout
// rooted in context.Background.
//
// Delivery is best-effort. A failed POST is logged and dropped; there is no
// retry path back to the original caller.
type Deliverer struct {
	dispatcher *Dispatcher
	cfg        config.Watcher
	client     *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu     sync.Mutex
	jobs   *queue.Queue[job]
	closed bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewDeliverer creates a deliverer and starts its worker pool.
func NewDeliverer(d *Dispatcher, cfg config.Watcher, m *metrics.Metrics, logger *zap.Logger) *Deliverer {
	dl := &Deliverer{
		dispatcher: d,
		cfg:        cfg,
		client:     &http.Client{},
		metrics:    m,
		logger:     logger,
		jobs:       queue.New[job](),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	workers := cfg.GetCurrentConfig().Bot.Workers
	dl.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go dl.worker()
	}

	return dl
}

// Enqueue accepts a callback delivery job. It reports false when the queue
// is full or the deliverer is shutting down; the caller then answers inline
// with the fallback instead of promising a callback it cannot keep.
func (dl *Deliverer) Enqueue(url, utterance, requestID string) bool {
	cfg := dl.cfg.GetCurrentConfig()

	dl.mu.Lock()
	if dl.closed || dl.jobs.Length() >= cfg.Bot.QueueSize {
		dl.mu.Unlock()
		dl.metrics.CallbackDeliveries.WithLabelValues("dropped").Inc()
		return false
	}
	dl.jobs.Add(job{
		url:       url,
		utterance: utterance,
		requestID: requestID,
		enqueued:  time.Now(),
	})
	depth := dl.jobs.Length()
	dl.mu.Unlock()

	dl.metrics.CallbackQueueDepth.Set(float64(depth))

	select {
	case dl.notify <- struct{}{}:
	default:
	}
	return true
}

// worker drains the queue. On shutdown it keeps draining until the queue is
// empty so queued answers still get a best-effort delivery attempt.
func (dl *Deliverer) worker() {
	defer dl.wg.Done()

	for {
		select {
		case <-dl.notify:
		case <-dl.done:
			for {
				j, ok := dl.pop()
				if !ok {
					return
				}
				dl.process(j)
			}
		}

		for {
			j, ok := dl.pop()
			if !ok {
				break
			}
			dl.process(j)
		}
	}
}

func (dl *Deliverer) pop() (job, bool) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.jobs.Length() == 0 {
		dl.metrics.CallbackQueueDepth.Set(0)
		return job{}, false
	}
	j := dl.jobs.Remove()
	dl.metrics.CallbackQueueDepth.Set(float64(dl.jobs.Length()))
	return j, true
}

// process generates the answer and delivers it. All failures end here: the
// outcome always carries platform-safe text, and a failed POST is logged
// and dropped.
func (dl *Deliverer) process(j job) {
	logger := dl.logger.With(
		zap.String("request_id", j.requestID),
		zap.Duration("queued_for", time.Since(j.enqueued)),
	)

	outcome := dl.dispatcher.ReplyDetached(context.Background(), j.utterance)

	if err := dl.deliver(j.url, outcome.Text); err != nil {
		dl.metrics.CallbackDeliveries.WithLabelValues("failed").Inc()
		logger.Warn("callback delivery failed",
			zap.Bool("fallback", outcome.Fallback),
			zap.Error(err),
		)
		return
	}

	dl.metrics.CallbackDeliveries.WithLabelValues("delivered").Inc()
	logger.Info("callback delivered",
		zap.Bool("fallback", outcome.Fallback),
		zap.String("reason", outcome.Reason),
	)
}

// deliver POSTs the formatted answer to the callback URL as a standard
// skill envelope, bounded by the configured delivery timeout.
func (dl *Deliverer) deliver(url, text string) error {
	cfg := dl.cfg.GetCurrentConfig()

	body, err := json.Marshal(kakao.SimpleTextResponse(text))
	if err != nil {
		return fmt.Errorf("marshal callback envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bot.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dl.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback responded with status %d", resp.StatusCode)
	}
	return nil
}

// Shutdown stops accepting new jobs and waits for the workers to drain the
// queue, up to the context deadline. Jobs still queued past the deadline are
// counted and logged, not silently dropped.
func (dl *Deliverer) Shutdown(ctx context.Context) error {
	dl.mu.Lock()
	if dl.closed {
		dl.mu.Unlock()
		return nil
	}
	dl.closed = true
	dl.mu.Unlock()

	close(dl.done)

	finished := make(chan struct{})
	go func() {
		dl.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		dl.mu.Lock()
		remaining := dl.jobs.Length()
		dl.mu.Unlock()
		if remaining > 0 {
			dl.logger.Error("shutdown deadline reached with undelivered callbacks",
				zap.Int("remaining", remaining),
			)
			dl.metrics.CallbackDeliveries.WithLabelValues("dropped").Add(float64(remaining))
		}
		return ctx.Err()
	}
}

// Package classify drives classification calls: memoization, retry policy,
// normalization, and the bounded-concurrency batch runner.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/memo"
	"github.com/ykarpov/inboxflow/app/metrics"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

const (
	// DefaultTruncateChars keeps the last N characters of message content.
	// Actionable information in correspondence tends to sit at the end
	// (the latest reply), so the tail is the part worth paying tokens for.
	// A heuristic, not a guarantee.
	DefaultTruncateChars = 8000

	// maxExtraAttempts bounds retries on transient upstream failures.
	maxExtraAttempts = 2

	// retryBaseDelay grows linearly per attempt: 1s, then 2s.
	retryBaseDelay = time.Second
)

// Orchestrator performs one logical classification: cache check, external
// call with retry and truncation policy, normalization, cache write.
type Orchestrator struct {
	client        llm.ClassifierClient
	cache         *memo.Cache
	normalizer    *taxonomy.Normalizer
	collector     metrics.Collector
	truncateChars int
	sleep         func(ctx context.Context, d time.Duration) error
}

type OrchestratorOption func(*Orchestrator)

func WithTruncateChars(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.truncateChars = n
		}
	}
}

// WithSleep overrides the backoff sleeper. Tests use this to avoid real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

func NewOrchestrator(client llm.ClassifierClient, cache *memo.Cache, collector metrics.Collector, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		cache:         cache,
		normalizer:    taxonomy.NewNormalizer(),
		collector:     collector,
		truncateChars: DefaultTruncateChars,
		sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classify classifies one item in the given mode. Exactly one cache write
// happens per successful classification, none on failure.
func (o *Orchestrator) Classify(ctx context.Context, item *mail.Item, mode llm.Mode, params map[string]string) (*taxonomy.ClassificationResult, error) {
	start := time.Now()
	defer func() {
		o.collector.RecordClassifyLatency(time.Since(start))
	}()

	content := truncateTail(item.Content, o.truncateChars)
	key := memo.Fingerprint(string(mode), content, params)

	if cached, ok := o.cache.Get(key); ok {
		o.collector.RecordCacheHit()
		slog.Debug("Classification cache hit", "item", item.ID, "mode", mode)
		return &cached, nil
	}
	o.collector.RecordCacheMiss()

	raw, err := o.callWithRetry(ctx, mode, content, params)
	if err != nil {
		o.recordFailure(err)
		return nil, err
	}

	result, err := o.normalizer.Run(raw)
	if err != nil {
		// A malformed answer is structural; retrying will not fix it,
		// and a failed classification is never cached.
		o.collector.RecordClassification(metrics.OutcomeFormat)
		return nil, err
	}

	o.cache.Set(key, *result)
	o.collector.RecordClassification(metrics.OutcomeSuccess)
	return result, nil
}

// ClassifyRaw returns the provider's answer text without normalization or
// caching. The categorize and match-label modes answer in mode-specific
// shapes the funnel taxonomy does not cover, so callers parse the text
// themselves. Truncation and retry policy match Classify.
func (o *Orchestrator) ClassifyRaw(ctx context.Context, item *mail.Item, mode llm.Mode, params map[string]string) (string, error) {
	content := truncateTail(item.Content, o.truncateChars)

	raw, err := o.callWithRetry(ctx, mode, content, params)
	if err != nil {
		o.recordFailure(err)
		return "", err
	}
	return raw, nil
}

// callWithRetry invokes the external classifier, retrying transient
// failures up to maxExtraAttempts times with linearly increasing backoff.
// Credential rejections and network failures are surfaced immediately.
func (o *Orchestrator) callWithRetry(ctx context.Context, mode llm.Mode, content string, params map[string]string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= maxExtraAttempts; attempt++ {
		if attempt > 0 {
			o.collector.RecordUpstreamRetry()
			delay := time.Duration(attempt) * retryBaseDelay
			slog.Warn("Retrying classifier call", "mode", mode, "attempt", attempt, "delay", delay.String(), "error", lastErr)
			if err := o.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		raw, err := o.client.Classify(ctx, mode, content, params)
		if err == nil {
			return raw, nil
		}

		if errors.Is(err, llm.ErrInvalidCredential) {
			return "", &AuthError{Err: err}
		}
		if !isTransient(err) {
			return "", err
		}
		lastErr = err
	}

	return "", &TransientUpstreamError{Attempts: maxExtraAttempts + 1, Last: lastErr}
}

func (o *Orchestrator) recordFailure(err error) {
	var authErr *AuthError
	var transientErr *TransientUpstreamError
	var netErr *llm.NetworkError

	switch {
	case errors.As(err, &authErr):
		o.collector.RecordClassification(metrics.OutcomeAuth)
	case errors.As(err, &transientErr):
		o.collector.RecordClassification(metrics.OutcomeTransient)
	case errors.As(err, &netErr):
		o.collector.RecordClassification(metrics.OutcomeNetwork)
	}
}

// truncateTail keeps at most the last n characters of s, cutting on a rune
// boundary.
func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package sidecar

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig controls spawn/handshake retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt;
	// zero means a single attempt.
	MaxRetries int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// OverallTimeout bounds wall-clock time across all attempts.
	OverallTimeout time.Duration
	// JitterFactor in [0,1] subtracts up to that fraction of each delay.
	JitterFactor float64
}

// DefaultRetryConfig matches the supervisor defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		OverallTimeout: 60 * time.Second,
		JitterFactor:   0.5,
	}
}

// RetryAttempt records one failed attempt.
type RetryAttempt struct {
	Attempt int
	Error   string
	Delay   time.Duration
}

// RetryMetadata spans all attempts of one retry-enabled operation, for
// receipt enrichment.
type RetryMetadata struct {
	TotalAttempts  int
	FailedAttempts []RetryAttempt
	TotalDuration  time.Duration
}

// ToReceiptMetadata flattens the metadata into a plain map for embedding
// in a receipt's usage payload.
func (m RetryMetadata) ToReceiptMetadata() map[string]any {
	out := map[string]any{
		"retry_total_attempts":    m.TotalAttempts,
		"retry_total_duration_ms": m.TotalDuration.Milliseconds(),
	}
	if len(m.FailedAttempts) > 0 {
		attempts := make([]map[string]any, 0, len(m.FailedAttempts))
		for _, a := range m.FailedAttempts {
			attempts = append(attempts, map[string]any{
				"attempt":  a.Attempt,
				"error":    a.Error,
				"delay_ms": a.Delay.Milliseconds(),
			})
		}
		out["retry_failed_attempts"] = attempts
	}
	return out
}

// ComputeDelay returns min(base * 2^attempt, max) with up to
// JitterFactor of the delay subtracted. attempt is zero-indexed.
func ComputeDelay(cfg RetryConfig, attempt int) time.Duration {
	if cfg.BaseDelay <= 0 {
		return 0
	}
	delay := cfg.BaseDelay << uint(attempt)
	if delay <= 0 || (cfg.MaxDelay > 0 && delay > cfg.MaxDelay) {
		delay = cfg.MaxDelay
	}

	jitter := cfg.JitterFactor
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if jitter > 0 && delay > 0 {
		span := int64(float64(delay) * jitter)
		if span > 0 {
			delay -= time.Duration(rand.Int63n(span))
		}
	}
	return delay
}

// SpawnWithRetry wraps Spawn with exponential backoff on transient
// failures. Protocol violations and version mismatches are returned
// immediately. The deadline is checked before every attempt and every
// sleep so a late error with a long backoff cannot overshoot it.
func SpawnWithRetry(ctx context.Context, spec Spec, cfg RetryConfig, logger *slog.Logger) (*Client, RetryMetadata, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	maxAttempts := cfg.MaxRetries + 1
	var failed []RetryAttempt

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if cfg.OverallTimeout > 0 && time.Since(start) >= cfg.OverallTimeout {
			return nil, RetryMetadata{}, timeoutErr("spawn deadline exceeded after " + cfg.OverallTimeout.String())
		}

		client, err := Spawn(ctx, spec, logger)
		if err == nil {
			return client, RetryMetadata{
				TotalAttempts:  attempt + 1,
				FailedAttempts: failed,
				TotalDuration:  time.Since(start),
			}, nil
		}

		if !IsRetryable(err) {
			logger.Debug("non-retryable spawn error", "error", err)
			return nil, RetryMetadata{}, err
		}
		if attempt+1 >= maxAttempts {
			logger.Warn("spawn retries exhausted", "attempts", maxAttempts, "error", err)
			return nil, RetryMetadata{}, err
		}

		delay := ComputeDelay(cfg, attempt)
		logger.Warn("retryable spawn error, backing off",
			"attempt", attempt, "delay", delay, "error", err)
		failed = append(failed, RetryAttempt{Attempt: attempt, Error: err.Error(), Delay: delay})

		if cfg.OverallTimeout > 0 {
			remaining := cfg.OverallTimeout - time.Since(start)
			if delay > remaining {
				return nil, RetryMetadata{}, timeoutErr("spawn deadline exceeded after " + cfg.OverallTimeout.String())
			}
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, RetryMetadata{}, cancelledErr()
		}
	}

	return nil, RetryMetadata{}, timeoutErr("spawn retries exhausted")
}

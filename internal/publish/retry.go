package publish

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "feedbot/pkg/logx"
)

// RetryConfig bounds attempts per Publish call.
type RetryConfig struct {
	RatePerSec    float64 // 0 disables rate limiting
	RetryMax      int     // extra attempts after the first
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	CallTimeout   time.Duration // per attempt; 0 means 15s
}

// Retrying wraps a Publisher with a rate limiter and exponential backoff.
type Retrying struct {
	next Publisher
	cfg  RetryConfig
	lim  *rate.Limiter
	log  logx.Logger

	// wait is swapped in tests.
	wait func(ctx context.Context, d time.Duration) error
}

func WithRetry(next Publisher, cfg RetryConfig, log logx.Logger) *Retrying {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Retrying{next: next, cfg: cfg, log: log, wait: sleepCtx}
	if cfg.RatePerSec > 0 {
		r.lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return r
}

func (r *Retrying) Publish(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	maxAttempts := 1
	if r.cfg.RetryMax > 0 {
		maxAttempts = 1 + r.cfg.RetryMax
	}
	timeout := r.cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.lim != nil {
			if err := r.lim.Wait(ctx); err != nil {
				return "", err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		id, err := r.next.Publish(callCtx, text)
		cancel()
		if err == nil {
			return id, nil
		}
		if id != "" {
			// partly live; a retry would post it twice
			r.log.Warn("publish partly failed", logx.String("id", id), logx.Err(err), logx.Int("attempt", attempt))
			return id, err
		}
		lastErr = err
		r.log.Debug("publish attempt failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if IsPermanent(err) || attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		if err := r.wait(ctx, retryDelay(r.cfg, attempt)); err != nil {
			return "", lastErr
		}
	}
	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryDelay is the delay before attempt+1: base * 2^(attempt-1) with 0.7..1.3 jitter, capped.
func retryDelay(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	j := 0.7 + rng.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}

package reliability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/metrics"
)

// Policy configures one guarded call.
type Policy struct {
	Timeout    time.Duration
	Attempts   int
	Backoff    time.Duration
	Multiplier float64
	MaxBackoff time.Duration
}

// NoRetry returns p with retries disabled.
func (p Policy) NoRetry() Policy {
	p.Attempts = 1
	return p
}

// delay returns the sleep before attempt n (1-based, n >= 2).
// Multiplier <= 1 gives linear backoff, otherwise exponential.
func (p Policy) delay(n int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	var d time.Duration
	if p.Multiplier <= 1 {
		d = p.Backoff * time.Duration(n-1)
	} else {
		f := float64(p.Backoff)
		for i := 2; i < n; i++ {
			f *= p.Multiplier
		}
		d = time.Duration(f)
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// WithTimeout runs op under a deadline of d. When the deadline passes first a *TimeoutError is
// returned immediately; op keeps its cancelled context and its result is discarded.
// A non-positive d runs op without a timer.
func WithTimeout[T any](ctx context.Context, op string, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == context.DeadlineExceeded {
			var zero T
			return zero, &TimeoutError{Op: op, After: d}
		}
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, &TimeoutError{Op: op, After: d}
		}
		return zero, ctx.Err()
	}
}

// WithRetry calls fn up to p.Attempts times, sleeping between attempts. Errors for which
// shouldRetry returns false are returned as-is without further attempts. A nil shouldRetry
// means IsTransient.
func WithRetry[T any](ctx context.Context, op string, p Policy, shouldRetry func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		zero    T
		lastErr error
	)
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			if err := sleep(ctx, p.delay(n)); err != nil {
				return zero, err
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return zero, err
		}
	}
	if attempts == 1 {
		return zero, lastErr
	}
	return zero, &RetryExhaustedError{Op: op, Attempts: attempts, LastError: lastErr}
}

// Guard applies a named Policy to external calls.
type Guard struct {
	policies map[string]Policy
	fallback Policy
	logger   *zap.Logger
}

// NewGuard creates a guard. Calls whose name has no policy use fallback.
func NewGuard(policies map[string]Policy, fallback Policy, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	cp := make(map[string]Policy, len(policies))
	for k, v := range policies {
		cp[k] = v
	}
	return &Guard{policies: cp, fallback: fallback, logger: logger}
}

// Policy returns the policy applied to calls named op.
func (g *Guard) Policy(op string) Policy {
	if p, ok := g.policies[op]; ok {
		return p
	}
	return g.fallback
}

// Call runs fn with the per-attempt timeout and retry policy registered for op.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p := g.Policy(op)
	attempt := 0
	v, err := WithRetry(ctx, op, p, func(err error) bool {
		retry := IsTransient(err)
		if retry && attempt < p.Attempts {
			g.logger.Debug("retrying guarded call", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		return retry
	}, func(ctx context.Context) (T, error) {
		attempt++
		return WithTimeout(ctx, op, p.Timeout, fn)
	})
	switch {
	case err == nil:
		metrics.CountCall(op, "ok")
	case IsTimeout(err):
		metrics.CountCall(op, "timeout")
	default:
		metrics.CountCall(op, "error")
	}
	return v, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

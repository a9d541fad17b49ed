package generation

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limited bounds how many Generate calls reach the wrapped provider at once
// and, optionally, how many start per second.
type Limited struct {
	next    Provider
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewLimited wraps next. maxConcurrent <= 0 means unbounded concurrency and
// ratePerSec <= 0 disables rate limiting.
func NewLimited(next Provider, maxConcurrent int, ratePerSec float64) *Limited {
	l := &Limited{next: next}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if ratePerSec > 0 {
		burst := maxConcurrent
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return l
}

func (l *Limited) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer l.sem.Release(1)
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return l.next.Generate(ctx, prompt, opts)
}

func (l *Limited) Available(ctx context.Context) bool { return l.next.Available(ctx) }

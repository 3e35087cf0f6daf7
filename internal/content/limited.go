package content

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// LimitedStore rate limits and retries fetches against another Store.
type LimitedStore struct {
	next       Store
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewLimitedStore wraps next. A non-positive rps disables rate limiting.
func NewLimitedStore(next Store, rps float64, maxRetries int, baseDelay time.Duration) *LimitedStore {
	s := &LimitedStore{
		next:       next,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
	if rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.baseDelay <= 0 {
		s.baseDelay = 100 * time.Millisecond
	}
	return s
}

func (s *LimitedStore) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	delay := s.baseDelay
	for attempt := 0; ; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		content, err := s.next.Fetch(ctx, hash)
		if err == nil {
			return content, nil
		}
		if !retryable(err) || attempt >= s.maxRetries {
			return nil, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccessDenied):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// Package history records completed pipeline runs.
package history

import (
	"context"
	"sync"

	"docqa/internal/domain"
)

// DefaultCapacity is the number of answers a Ring keeps.
const DefaultCapacity = 100

// Store is an append-only, order-preserving log of answers. Implementations
// must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, answer domain.Answer) error
	// Recent returns up to limit answers, oldest first. limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]domain.Answer, error)
}

// Ring keeps the most recent answers in memory, evicting the oldest once the
// capacity is reached. Answers are copied on the way in and out.
type Ring struct {
	mu    sync.Mutex
	buf   []domain.Answer
	start int
	size  int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]domain.Answer, capacity)}
}

func (r *Ring) Append(_ context.Context, answer domain.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = answer.Clone()
	if r.size < len(r.buf) {
		r.size++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
	return nil
}

func (r *Ring) Recent(_ context.Context, limit int) ([]domain.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Answer, n)
	skip := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+skip+i)%len(r.buf)].Clone()
	}
	return out, nil
}

// Len reports how many answers are held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Discard drops every answer.
type Discard struct{}

func (Discard) Append(context.Context, domain.Answer) error { return nil }

func (Discard) Recent(context.Context, int) ([]domain.Answer, error) { return nil, nil }

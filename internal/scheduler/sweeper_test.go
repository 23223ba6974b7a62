package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubLister struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *stubLister) ListStalled(ctx context.Context, olderThan time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids, s.err
}

func TestSweeper_ReenqueuesStalledRuns(t *testing.T) {
	lister := &stubLister{ids: []string{"req-1", "req-2"}}

	var mu sync.Mutex
	var enqueued []string
	s := NewSweeper(zerolog.Nop(), lister, func(id string) {
		mu.Lock()
		defer mu.Unlock()
		enqueued = append(enqueued, id)
	}, 20*time.Millisecond, 15*time.Minute)

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(enqueued)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, enqueued, "req-1")
	assert.Contains(t, enqueued, "req-2")
}

func TestSweeper_SweepToleratesListError(t *testing.T) {
	lister := &stubLister{err: context.DeadlineExceeded}
	s := NewSweeper(zerolog.Nop(), lister, func(id string) {
		t.Fatal("enqueue should not be called")
	}, time.Minute, 15*time.Minute)

	// Direct sweep; the list error is logged and swallowed.
	s.sweep()
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// StalledLister yields ids of provisioning runs that should be making
// progress but have not been touched recently.
type StalledLister interface {
	ListStalled(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// Sweeper periodically re-enqueues orchestrator runs for stalled ledger
// rows. It exists for crash recovery: a process that dies mid-run leaves a
// row that is neither completed nor failed, and the per-jobID dedup in the
// Scheduler makes re-enqueueing safe.
type Sweeper struct {
	logger     zerolog.Logger
	ledger     StalledLister
	enqueue    func(requestID string)
	staleAfter time.Duration
	cron       *cron.Cron
}

func NewSweeper(logger zerolog.Logger, ledger StalledLister, enqueue func(requestID string), every, staleAfter time.Duration) *Sweeper {
	s := &Sweeper{
		logger:     logger.With().Str("component", "sweeper").Logger(),
		ledger:     ledger,
		enqueue:    enqueue,
		staleAfter: staleAfter,
		cron:       cron.New(),
	}
	s.cron.AddFunc(fmt.Sprintf("@every %s", every), s.sweep)
	return s
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := s.ledger.ListStalled(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return
	}
	for _, id := range ids {
		s.logger.Info().Str("request_id", id).Msg("re-enqueueing stalled run")
		s.enqueue(id)
	}
}

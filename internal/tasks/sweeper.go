package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically evicts finished tasks and stale cache entries from a [Manager].
type Sweeper struct {
	cron    *cron.Cron
	manager *Manager
	logger  *log.Logger
	entry   cron.EntryID
}

// NewSweeper schedules [Manager.Sweep] every interval. The interval is rounded down to whole seconds
// with a one second minimum.
func NewSweeper(m *Manager, interval time.Duration, logger *log.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = log.Default()
	}
	interval = max(interval.Truncate(time.Second), time.Second)

	s := &Sweeper{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DiscardLogger))),
		manager: m,
		logger:  logger.With("component", "sweeper"),
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.run)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.entry = id
	return s, nil
}

func (s *Sweeper) run() {
	evicted, swept := s.manager.Sweep()
	s.logger.Debug("sweep finished", "evicted", evicted, "swept", swept)
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweeper started", "next", s.cron.Entry(s.entry).Next)
}

// Stop halts the schedule and waits for a running sweep, or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package campaign

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper runs the expiry sweep on a fixed interval so campaigns
// complete on time even when nobody is looking at listings.
type Sweeper struct {
	service  *Service
	logger   *slog.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper over the given service.
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		service:  service,
		logger:   logger.With("component", "sweeper"),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the sweeper.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("sweeper started", "interval", s.interval)
}

// Stop stops the sweeper gracefully.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.service.Sweep(s.ctx); err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

package recall

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/history"
)

// Scheduler re-summarizes recently active sessions on a cron schedule,
// independent of the per-turn trigger. Useful for long-idle sessions whose
// last burst of turns never crossed the turn threshold.
type Scheduler struct {
	store  *history.Store
	fn     history.SummarizeFunc
	logger zerolog.Logger
	window time.Duration
	cron   *cron.Cron
}

// SchedulerConfig configures a summarization scheduler
type SchedulerConfig struct {
	Store      *history.Store
	Summarizer history.SummarizeFunc
	Logger     zerolog.Logger

	// Window limits work to sessions updated within this duration
	// (default 24h)
	Window time.Duration
}

// NewScheduler creates a stopped scheduler; call Start with a cron spec
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if cfg.Summarizer == nil {
		return nil, errors.New("scheduler requires a summarizer")
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Scheduler{
		store:  cfg.Store,
		fn:     cfg.Summarizer,
		logger: cfg.Logger,
		window: cfg.Window,
		cron:   cron.New(),
	}, nil
}

// Start begins running RunOnce on the given cron spec (e.g. "@hourly")
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", spec).Msg("Summarization scheduler started")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce summarizes every session updated within the window. Per-session
// failures are logged and skipped; the pass always visits every candidate.
func (s *Scheduler) RunOnce(ctx context.Context) {
	sessions, err := s.store.Sessions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduler could not list sessions")
		return
	}

	cutoff := time.Now().UTC().Add(-s.window)
	summarized := 0
	for _, info := range sessions {
		if info.UpdatedAt.Before(cutoff) {
			// Sessions come back most recently updated first
			break
		}
		if _, err := s.store.Summarize(ctx, info.ID, s.fn); err != nil {
			s.logger.Warn().Str("session_id", info.ID).Err(err).Msg("Scheduled summary failed")
			continue
		}
		summarized++
	}

	if summarized > 0 {
		s.logger.Info().Int("sessions", summarized).Msg("Scheduled summarization pass completed")
	}
}

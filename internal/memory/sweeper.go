package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically folds memory for users whose request-path compaction
// was skipped or failed.
type Sweeper struct {
	compactor *Compactor
	store     Store
	logger    zerolog.Logger
	timeout   time.Duration
	cron      *cron.Cron
}

func NewSweeper(compactor *Compactor, store Store, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		compactor: compactor,
		store:     store,
		logger:    logger,
		timeout:   2 * time.Minute,
	}
}

// Start schedules RunOnce on a standard five-field cron spec.
func (s *Sweeper) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("memory sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule memory sweep %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info().Str("schedule", spec).Msg("memory sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce folds every user with enough pending turns and returns how many
// were folded. Per-user failures are logged and do not stop the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	users, err := s.store.UsersWithPendingTurns(ctx, s.compactor.Threshold())
	if err != nil {
		return 0, err
	}
	folded := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return folded, ctx.Err()
		}
		ok, err := s.compactor.UpdateIfNeeded(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("memory sweep fold failed")
			continue
		}
		if ok {
			folded++
		}
	}
	if folded > 0 {
		s.logger.Info().Int("folded", folded).Int("candidates", len(users)).Msg("memory sweep complete")
	}
	return folded, nil
}

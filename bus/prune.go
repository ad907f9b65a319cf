package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs journal pruning once an hour.
const DefaultPruneSchedule = "@hourly"

var pruneCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Pruner removes expired journal entries.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// PruneSchedulerConfig configures a PruneScheduler.
type PruneSchedulerConfig struct {
	Store    Pruner
	Schedule string
	Logger   *slog.Logger
}

// PruneScheduler runs Pruner.Prune on a cron schedule evaluated in UTC.
type PruneScheduler struct {
	cron   *cron.Cron
	store  Pruner
	logger *slog.Logger
}

// ParsePruneSchedule validates a standard five-field cron expression or a
// descriptor such as @hourly.
func ParsePruneSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("prune schedule is required")
	}
	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, errors.New("prune schedule must not carry a timezone prefix")
	}
	schedule, err := pruneCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule: %w", err)
	}
	return schedule, nil
}

// NewPruneScheduler creates a scheduler; call Start to begin running it.
func NewPruneScheduler(cfg PruneSchedulerConfig) (*PruneScheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("bus: prune scheduler requires a store")
	}
	expr := cfg.Schedule
	if strings.TrimSpace(expr) == "" {
		expr = DefaultPruneSchedule
	}
	schedule, err := ParsePruneSchedule(expr)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &PruneScheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		store:  cfg.Store,
		logger: logger,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.RunOnce))
	return s, nil
}

// RunOnce performs one pruning pass.
func (s *PruneScheduler) RunOnce() {
	removed, err := s.store.Prune(context.Background())
	if err != nil {
		s.logger.Error("journal prune failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("journal pruned", "removed", removed)
	}
}

// Start begins running the schedule in the background.
func (s *PruneScheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running pass, bounded by ctx.
func (s *PruneScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

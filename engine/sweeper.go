package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// Sweeper settles time-based terminal states in the background: triggered
// rewards past their expiry become expired, and stale passports are closed
// out. Redemption also settles expiry lazily; the sweeper keeps listings and
// counters honest for rewards nobody touches again.
type Sweeper struct {
	repo     Repository
	bus      *EventBus
	interval time.Duration
	logger   *slog.Logger
	sched    gocron.Scheduler
	now      func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the sweep cadence (default one minute).
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweeperLogger sets the structured logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweeperClock overrides the time source, for tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper builds a sweeper over the repository.
func NewSweeper(repo Repository, bus *EventBus, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		bus:      bus,
		interval: time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start schedules periodic sweeps until Stop is called.
func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()
			s.Sweep(ctx)
		}),
	)
	if err != nil {
		return err
	}
	sched.Start()
	s.sched = sched
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// Sweep runs one pass. Individual settle failures are logged and skipped so a
// bad row never wedges the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now().UTC()

	stale, err := s.repo.ListExpiredRewards(ctx, now)
	if err != nil {
		s.logger.Error("list expired rewards failed", "error", err)
	}
	for _, r := range stale {
		if r.Status != rewards.StatusTriggered {
			continue
		}
		r.Status = rewards.StatusExpired
		if err := s.repo.UpdateTriggeredReward(ctx, r); err != nil {
			s.logger.Error("expire reward failed", "reward", r.ID, "error", err)
			continue
		}
		s.bus.Publish(ctx, core.DomainEvent{
			Type:     core.EventRewardExpired,
			Time:     now,
			UserID:   r.UserID,
			EntityID: r.ID,
		})
	}

	passports, err := s.repo.ListExpiredPassports(ctx, now)
	if err != nil {
		s.logger.Error("list expired passports failed", "error", err)
	}
	for _, p := range passports {
		if p.Status != passport.StatusActive {
			continue
		}
		p.Status = passport.StatusExpired
		if err := s.repo.UpdatePassport(ctx, p); err != nil {
			s.logger.Error("expire passport failed", "passport", p.ID, "error", err)
		}
	}

	if len(stale) > 0 || len(passports) > 0 {
		s.logger.Info("sweep settled expirations", "rewards", len(stale), "passports", len(passports))
	}
}

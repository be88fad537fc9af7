// Package trigger assembles the reward engine for embedding. Applications
// that do not want the HTTP server can build a Stack and feed it provider
// payloads directly.
package trigger

import (
	"context"
	"math/rand/v2"
	"time"

	mem "geotrigger/adapters/memory"
	"geotrigger/catalog"
	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/integrations/push"
	"geotrigger/passport"
	"geotrigger/realtime"
	"geotrigger/rewards"
	"geotrigger/webhook"
)

// Option configures the Stack builder.
type Option func(*config)

type config struct {
	repo     engine.Repository
	cat      *catalog.Catalog
	mode     engine.DispatchMode
	hub      *realtime.Hub
	notifier engine.Notifier
	clock    func() time.Time
}

// WithRepository sets the persistence adapter.
func WithRepository(r engine.Repository) Option { return func(c *config) { c.repo = r } }

// WithCatalog sets the tier, passport, and promotion catalog.
func WithCatalog(cat *catalog.Catalog) Option { return func(c *config) { c.cat = cat } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithNotifier sets the notification collaborator.
func WithNotifier(n engine.Notifier) Option { return func(c *config) { c.notifier = n } }

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option { return func(c *config) { c.clock = now } }

// Stack bundles the assembled engine components.
type Stack struct {
	Repo         engine.Repository
	Guard        *webhook.Guard
	Orchestrator *engine.Orchestrator
	Redeemer     *rewards.Redeemer
	Evaluator    *rewards.Evaluator
	Bus          *engine.EventBus

	detach func()
}

// New builds a configured Stack. If not provided, defaults are used:
//   - repository: in-memory
//   - catalog: built-in defaults
//   - dispatch: async
//   - notifier: log-only push sink
func New(opts ...Option) (*Stack, error) {
	cfg := &config{
		mode:  engine.DispatchAsync,
		clock: time.Now,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.repo == nil {
		cfg.repo = mem.New()
	}
	if cfg.cat == nil {
		cfg.cat = catalog.Default()
	}
	if cfg.notifier == nil {
		cfg.notifier = push.New(nil)
	}

	tiers, err := cfg.cat.TierTable()
	if err != nil {
		return nil, err
	}
	calc := core.NewPointsCalculator(tiers, cfg.cat.PointsRules)

	validator, err := passport.NewValidator(cfg.repo, cfg.cat.Templates, cfg.cat.Achievements,
		cfg.cat.DefaultTemplateID, passport.WithClock(cfg.clock))
	if err != nil {
		return nil, err
	}

	codes := rewards.NewCodeGenerator("GEO", rand.NewPCG(uint64(cfg.clock().UnixNano()), 0))
	eval, err := rewards.NewEvaluator(cfg.cat.Promotions, cfg.cat.HappyHours, cfg.cat.Weather,
		engine.NewDisplayGate(cfg.repo), codes, rewards.WithEvaluatorClock(cfg.clock))
	if err != nil {
		return nil, err
	}

	bus := engine.NewEventBus(cfg.mode)
	orch, err := engine.NewOrchestrator(cfg.repo, cfg.notifier, bus, tiers, calc, validator, eval,
		engine.WithOrchestratorClock(cfg.clock))
	if err != nil {
		bus.Close()
		return nil, err
	}

	s := &Stack{
		Repo:         cfg.repo,
		Guard:        webhook.NewGuard(cfg.repo, webhook.WithGuardClock(cfg.clock)),
		Orchestrator: orch,
		Redeemer:     rewards.NewRedeemer(cfg.repo, rewards.WithRedeemerClock(cfg.clock)),
		Evaluator:    eval,
		Bus:          bus,
	}
	if cfg.hub != nil {
		s.detach = cfg.hub.Attach(bus)
	}
	return s, nil
}

// Process runs a provider payload through admission and, if admitted,
// the full reward pipeline. The Validation reports why a payload was
// rejected or suppressed.
func (s *Stack) Process(ctx context.Context, p *webhook.Payload) (*engine.EventResult, webhook.Validation, error) {
	verdict, err := s.Guard.Validate(ctx, p)
	if err != nil || !verdict.Accepted || !verdict.Process {
		return nil, verdict, err
	}
	res, err := s.Orchestrator.HandleLocationEvent(ctx, p.ToLocationEvent())
	return res, verdict, err
}

// Close detaches the realtime bridge and stops the event bus.
func (s *Stack) Close() {
	if s.detach != nil {
		s.detach()
	}
	s.Bus.Close()
}

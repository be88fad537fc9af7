package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/webhook"
)

// Metrics holds the Prometheus collectors for webhook ingestion and event
// processing. All collectors live on a private registry so tests can build
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	EventsAdmitted   prometheus.Counter
	EventsSuppressed *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec

	PointsAwarded   prometheus.Counter
	TierUpgrades    prometheus.Counter
	StampsAwarded   prometheus.Counter
	RewardsTriggers prometheus.Counter
	RewardsRedeemed prometheus.Counter
	RewardsExpired  prometheus.Counter

	ProcessingDuration prometheus.Histogram
}

// New builds a metric set on a fresh registry. collectSystem adds the
// standard Go runtime and process collectors.
func New(collectSystem bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_events_admitted_total",
			Help: "Total number of location events admitted for processing",
		}),
		EventsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrigger_events_suppressed_total",
			Help: "Total number of location events silently skipped, by reason",
		}, []string{"reason"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrigger_events_rejected_total",
			Help: "Total number of location events rejected, by reason",
		}, []string{"reason"}),
		PointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_points_awarded_total",
			Help: "Total points credited across all users",
		}),
		TierUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_tier_upgrades_total",
			Help: "Total number of tier upgrades",
		}),
		StampsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_stamps_awarded_total",
			Help: "Total number of passport stamps awarded",
		}),
		RewardsTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_rewards_triggered_total",
			Help: "Total number of rewards triggered",
		}),
		RewardsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_rewards_redeemed_total",
			Help: "Total number of rewards redeemed",
		}),
		RewardsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrigger_rewards_expired_total",
			Help: "Total number of rewards expired by the sweeper",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geotrigger_event_processing_duration_seconds",
			Help:    "Duration of location event processing",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.EventsAdmitted, m.EventsSuppressed, m.EventsRejected,
		m.PointsAwarded, m.TierUpgrades, m.StampsAwarded,
		m.RewardsTriggers, m.RewardsRedeemed, m.RewardsExpired,
		m.ProcessingDuration,
	)
	if collectSystem {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveValidation records the guard's verdict for one webhook payload.
func (m *Metrics) ObserveValidation(v webhook.Validation) {
	switch {
	case v.Process:
		m.EventsAdmitted.Inc()
	case v.Accepted:
		m.EventsSuppressed.WithLabelValues(v.Reason).Inc()
	default:
		m.EventsRejected.WithLabelValues(v.Reason).Inc()
	}
}

// ObserveProcessing records how long one admitted event took end to end.
func (m *Metrics) ObserveProcessing(d time.Duration) {
	m.ProcessingDuration.Observe(d.Seconds())
}

// Attach subscribes the counters to the engine's event bus and returns a
// detach func.
func (m *Metrics) Attach(bus *engine.EventBus) func() {
	count := func(c prometheus.Counter) func(context.Context, core.DomainEvent) {
		return func(context.Context, core.DomainEvent) { c.Inc() }
	}
	unsubs := []func(){
		bus.Subscribe(core.EventPointsAwarded, func(_ context.Context, ev core.DomainEvent) {
			m.PointsAwarded.Add(float64(ev.Points))
		}),
		bus.Subscribe(core.EventTierUpgraded, count(m.TierUpgrades)),
		bus.Subscribe(core.EventStampAwarded, count(m.StampsAwarded)),
		bus.Subscribe(core.EventRewardTriggered, count(m.RewardsTriggers)),
		bus.Subscribe(core.EventRewardRedeemed, count(m.RewardsRedeemed)),
		bus.Subscribe(core.EventRewardExpired, count(m.RewardsExpired)),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

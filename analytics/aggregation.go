package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is one rollup of the engagement counters.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // e.g., "2025-03-04" for daily, "2025-W10" for weekly
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	ActiveUsers int `json:"active_users"`

	PointsAwarded int64 `json:"points_awarded"`
	StampsAwarded int64 `json:"stamps_awarded"`

	RewardsTriggered int64 `json:"rewards_triggered"`
	RewardsRedeemed  int64 `json:"rewards_redeemed"`
	RewardsExpired   int64 `json:"rewards_expired"`

	CreatedAt time.Time `json:"created_at"`
}

// AggregationEngine periodically rolls the collector's counters into
// daily, weekly, and monthly snapshots.
type AggregationEngine struct {
	mu sync.RWMutex

	collector *Collector
	logger    *slog.Logger
	now       func() time.Time

	dailyAggregations   map[string]*AggregatedData
	weeklyAggregations  map[string]*AggregatedData
	monthlyAggregations map[string]*AggregatedData

	aggregationInterval time.Duration
	lastAggregation     time.Time
}

// EngineOption configures an AggregationEngine.
type EngineOption func(*AggregationEngine)

// WithEngineLogger sets the structured logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(ae *AggregationEngine) {
		if l != nil {
			ae.logger = l
		}
	}
}

// WithEngineClock overrides the time source, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(ae *AggregationEngine) { ae.now = now }
}

func NewAggregationEngine(collector *Collector, aggregationInterval time.Duration, opts ...EngineOption) *AggregationEngine {
	ae := &AggregationEngine{
		collector:           collector,
		logger:              slog.Default(),
		now:                 time.Now,
		dailyAggregations:   make(map[string]*AggregatedData),
		weeklyAggregations:  make(map[string]*AggregatedData),
		monthlyAggregations: make(map[string]*AggregatedData),
		aggregationInterval: aggregationInterval,
	}
	for _, o := range opts {
		o(ae)
	}
	ae.lastAggregation = ae.now()
	return ae
}

// AggregateNow forces an immediate aggregation of all periods.
func (ae *AggregationEngine) AggregateNow() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	now := ae.now().UTC()

	if err := ae.aggregateDaily(now); err != nil {
		return fmt.Errorf("aggregate daily data: %w", err)
	}
	if err := ae.aggregateWeekly(now); err != nil {
		return fmt.Errorf("aggregate weekly data: %w", err)
	}
	if err := ae.aggregateMonthly(now); err != nil {
		return fmt.Errorf("aggregate monthly data: %w", err)
	}

	ae.lastAggregation = now
	return nil
}

func (ae *AggregationEngine) aggregateDaily(now time.Time) error {
	today := now.Format("2006-01-02")
	startTime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	data := &AggregatedData{
		Period:    PeriodDaily,
		Key:       today,
		StartTime: startTime,
		EndTime:   startTime.Add(24 * time.Hour),
		CreatedAt: now,
	}

	data.ActiveUsers = ae.collector.DailyActiveUsers(today)
	data.PointsAwarded = ae.collector.PointsAwardedByDay(today)
	data.StampsAwarded = ae.collector.StampsAwardedByDay(today)
	data.RewardsTriggered, data.RewardsRedeemed, data.RewardsExpired = ae.collector.RewardFunnelByDay(today)

	ae.dailyAggregations[today] = data
	return nil
}

// aggregateWeekly aggregates data for the current ISO week.
func (ae *AggregationEngine) aggregateWeekly(now time.Time) error {
	key := weekKey(now)

	// Calculate week start (Monday)
	daysSinceMonday := int(now.Weekday()-time.Monday) % 7
	if daysSinceMonday < 0 {
		daysSinceMonday += 7
	}
	startTime := time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)

	data := &AggregatedData{
		Period:    PeriodWeekly,
		Key:       key,
		StartTime: startTime,
		EndTime:   startTime.Add(7 * 24 * time.Hour),
		CreatedAt: now,
	}

	data.ActiveUsers = ae.collector.WeeklyActiveUsers(key)
	for i := 0; i < 7; i++ {
		day := startTime.AddDate(0, 0, i).Format("2006-01-02")
		data.PointsAwarded += ae.collector.PointsAwardedByDay(day)
		data.StampsAwarded += ae.collector.StampsAwardedByDay(day)
		tr, rd, ex := ae.collector.RewardFunnelByDay(day)
		data.RewardsTriggered += tr
		data.RewardsRedeemed += rd
		data.RewardsExpired += ex
	}

	ae.weeklyAggregations[key] = data
	return nil
}

// aggregateMonthly aggregates data for the current month.
func (ae *AggregationEngine) aggregateMonthly(now time.Time) error {
	key := monthKey(now)

	startTime := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	endTime := startTime.AddDate(0, 1, 0)

	data := &AggregatedData{
		Period:    PeriodMonthly,
		Key:       key,
		StartTime: startTime,
		EndTime:   endTime,
		CreatedAt: now,
	}

	data.ActiveUsers = ae.collector.MonthlyActiveUsers(key)
	days := int(endTime.Sub(startTime).Hours() / 24)
	for i := 0; i < days; i++ {
		day := startTime.AddDate(0, 0, i).Format("2006-01-02")
		data.PointsAwarded += ae.collector.PointsAwardedByDay(day)
		data.StampsAwarded += ae.collector.StampsAwardedByDay(day)
		tr, rd, ex := ae.collector.RewardFunnelByDay(day)
		data.RewardsTriggered += tr
		data.RewardsRedeemed += rd
		data.RewardsExpired += ex
	}

	ae.monthlyAggregations[key] = data
	return nil
}

// GetAggregatedData returns aggregated data for a specific period and key.
func (ae *AggregationEngine) GetAggregatedData(period AggregationPeriod, key string) (*AggregatedData, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	aggregations := ae.byPeriod(period)
	if aggregations == nil {
		return nil, false
	}
	data, exists := aggregations[key]
	return data, exists
}

// GetAllAggregatedData returns all aggregated data for a specific period.
func (ae *AggregationEngine) GetAllAggregatedData(period AggregationPeriod) []*AggregatedData {
	ae.mu.RLock()
	defer ae.mu.RUnlock()

	aggregations := ae.byPeriod(period)
	result := make([]*AggregatedData, 0, len(aggregations))
	for _, data := range aggregations {
		result = append(result, data)
	}
	return result
}

func (ae *AggregationEngine) byPeriod(period AggregationPeriod) map[string]*AggregatedData {
	switch period {
	case PeriodDaily:
		return ae.dailyAggregations
	case PeriodWeekly:
		return ae.weeklyAggregations
	case PeriodMonthly:
		return ae.monthlyAggregations
	default:
		return nil
	}
}

// Start begins periodic aggregation and blocks until ctx is done.
func (ae *AggregationEngine) Start(ctx context.Context) {
	ticker := time.NewTicker(ae.aggregationInterval)
	defer ticker.Stop()

	if err := ae.AggregateNow(); err != nil {
		ae.logger.Error("initial aggregation failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ae.AggregateNow(); err != nil {
				ae.logger.Error("periodic aggregation failed", "error", err)
			}
		}
	}
}

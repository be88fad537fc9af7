// Package analytics aggregates engagement KPIs from the engine's event
// stream: active visitors, points issued, stamps, and reward funnel counts.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"geotrigger/core"
	"geotrigger/engine"
)

// Collector accumulates per-day engagement counters from domain events.
type Collector struct {
	mu sync.RWMutex

	// Visitor engagement
	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	// Points
	pointsAwardedByDay    map[string]int64
	pointsAwardedByAction map[core.ActionType]int64

	// Passports
	stampsAwardedByDay  map[string]int64
	passportsCompleted  int64
	achievementsByDay   map[string]int64

	// Reward funnel
	rewardsTriggeredByDay map[string]int64
	rewardsRedeemedByDay  map[string]int64
	rewardsExpiredByDay   map[string]int64

	// Tier progression
	tierUpgradesByTier map[core.TierLevel]int64
}

// NewCollector builds an empty collector.
func NewCollector() *Collector {
	return &Collector{
		dailyActiveUsers:      make(map[string]map[core.UserID]struct{}),
		weeklyActiveUsers:     make(map[string]map[core.UserID]struct{}),
		monthlyActiveUsers:    make(map[string]map[core.UserID]struct{}),
		pointsAwardedByDay:    make(map[string]int64),
		pointsAwardedByAction: make(map[core.ActionType]int64),
		stampsAwardedByDay:    make(map[string]int64),
		achievementsByDay:     make(map[string]int64),
		rewardsTriggeredByDay: make(map[string]int64),
		rewardsRedeemedByDay:  make(map[string]int64),
		rewardsExpiredByDay:   make(map[string]int64),
		tierUpgradesByTier:    make(map[core.TierLevel]int64),
	}
}

// OnEvent folds a domain event into the counters.
func (c *Collector) OnEvent(ev core.DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := ev.Time.UTC().Format("2006-01-02")
	week := weekKey(ev.Time)
	month := monthKey(ev.Time)

	c.trackVisitor(ev.UserID, day, week, month)

	switch ev.Type {
	case core.EventPointsAwarded:
		if ev.Points > 0 {
			c.pointsAwardedByDay[day] += ev.Points
			c.pointsAwardedByAction[ev.Action] += ev.Points
		}
	case core.EventTierUpgraded:
		c.tierUpgradesByTier[ev.Tier]++
	case core.EventStampAwarded:
		c.stampsAwardedByDay[day]++
	case core.EventPassportCompleted:
		c.passportsCompleted++
	case core.EventAchievementEarned:
		c.achievementsByDay[day]++
	case core.EventRewardTriggered:
		c.rewardsTriggeredByDay[day]++
	case core.EventRewardRedeemed:
		c.rewardsRedeemedByDay[day]++
	case core.EventRewardExpired:
		c.rewardsExpiredByDay[day]++
	}
}

var collectedTypes = []core.DomainEventType{
	core.EventPointsAwarded,
	core.EventTierUpgraded,
	core.EventStampAwarded,
	core.EventPassportCompleted,
	core.EventRewardTriggered,
	core.EventRewardRedeemed,
	core.EventRewardExpired,
	core.EventAchievementEarned,
}

// Attach subscribes the collector to every engine event type and returns a
// detach func.
func (c *Collector) Attach(bus *engine.EventBus) func() {
	unsubs := make([]func(), 0, len(collectedTypes))
	for _, typ := range collectedTypes {
		unsubs = append(unsubs, bus.Subscribe(typ, func(_ context.Context, ev core.DomainEvent) {
			c.OnEvent(ev)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (c *Collector) trackVisitor(userID core.UserID, day, week, month string) {
	if c.dailyActiveUsers[day] == nil {
		c.dailyActiveUsers[day] = make(map[core.UserID]struct{})
	}
	c.dailyActiveUsers[day][userID] = struct{}{}

	if c.weeklyActiveUsers[week] == nil {
		c.weeklyActiveUsers[week] = make(map[core.UserID]struct{})
	}
	c.weeklyActiveUsers[week][userID] = struct{}{}

	if c.monthlyActiveUsers[month] == nil {
		c.monthlyActiveUsers[month] = make(map[core.UserID]struct{})
	}
	c.monthlyActiveUsers[month][userID] = struct{}{}
}

// DailyActiveUsers returns the count of distinct visitors for a day key.
func (c *Collector) DailyActiveUsers(day string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dailyActiveUsers[day])
}

// WeeklyActiveUsers returns the count of distinct visitors for a week key.
func (c *Collector) WeeklyActiveUsers(week string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.weeklyActiveUsers[week])
}

// MonthlyActiveUsers returns the count of distinct visitors for a month key.
func (c *Collector) MonthlyActiveUsers(month string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.monthlyActiveUsers[month])
}

// PointsAwardedByDay returns total points issued on a day.
func (c *Collector) PointsAwardedByDay(day string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pointsAwardedByDay[day]
}

// PointsAwardedByAction returns total points issued for an action type.
func (c *Collector) PointsAwardedByAction(action core.ActionType) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pointsAwardedByAction[action]
}

// StampsAwardedByDay returns stamps issued on a day.
func (c *Collector) StampsAwardedByDay(day string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stampsAwardedByDay[day]
}

// RewardFunnelByDay returns triggered, redeemed, and expired counts for a day.
func (c *Collector) RewardFunnelByDay(day string) (triggered, redeemed, expired int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rewardsTriggeredByDay[day], c.rewardsRedeemedByDay[day], c.rewardsExpiredByDay[day]
}

// TierUpgrades returns how many users reached the given tier.
func (c *Collector) TierUpgrades(tier core.TierLevel) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tierUpgradesByTier[tier]
}

// PassportsCompleted returns the lifetime completion count.
func (c *Collector) PassportsCompleted() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.passportsCompleted
}

func weekKey(t time.Time) string {
	tt := t.UTC()
	year, week := tt.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

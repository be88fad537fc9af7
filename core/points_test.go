package core

import (
	"testing"
	"time"
)

func testCalculator(t *testing.T) *PointsCalculator {
	t.Helper()
	return NewPointsCalculator(testTable(t), []PointsRule{
		{ActionType: ActionVenueVisit, BasePoints: 10, TierMultiplier: true},
		{ActionType: ActionFirstVisit, BasePoints: 50, TierMultiplier: true, FirstTimeBonus: 100},
		{ActionType: ActionPayment, BasePoints: 1, TierMultiplier: true},
		{ActionType: ActionExtendedVisit, BasePoints: 25, TierMultiplier: true, VolumeBonuses: []VolumeBonus{
			{Threshold: time.Hour, Bonus: 15},
			{Threshold: 2 * time.Hour, Bonus: 30},
		}},
		{ActionType: ActionMultipleVenues, BasePoints: 75, TierMultiplier: true},
		{ActionType: ActionFriendReferral, BasePoints: 200},
	})
}

func TestCalculateVenueVisit(t *testing.T) {
	c := testCalculator(t)
	if got := c.CalculatePoints(TierBronze, VisitDetail{VenueName: "Beach Club"}); got != 10 {
		t.Fatalf("bronze visit = %d, want 10", got)
	}
	// silver multiplier 1.2, floored
	if got := c.CalculatePoints(TierSilver, VisitDetail{VenueName: "Beach Club"}); got != 12 {
		t.Fatalf("silver visit = %d, want 12", got)
	}
}

func TestCalculatePaymentSpendProportional(t *testing.T) {
	c := testCalculator(t)
	// 500 MXN at bronze: floor(500/10) * (1 * 1.0) = 50
	if got := c.CalculatePoints(TierBronze, PaymentDetail{AmountMXN: 500}); got != 50 {
		t.Fatalf("payment = %d, want 50", got)
	}
	// black multiplier 2.0: 50 units * 2 = 100
	if got := c.CalculatePoints(TierBlack, PaymentDetail{AmountMXN: 500}); got != 100 {
		t.Fatalf("black payment = %d, want 100", got)
	}
	// below one spend unit awards nothing
	if got := c.CalculatePoints(TierBronze, PaymentDetail{AmountMXN: 9}); got != 0 {
		t.Fatalf("small payment = %d, want 0", got)
	}
}

func TestCalculateExtendedVisitVolumeBonus(t *testing.T) {
	c := testCalculator(t)
	base := c.CalculatePoints(TierBronze, ExtendedVisitDetail{Duration: 31 * time.Minute})
	if base != 25 {
		t.Fatalf("30m visit = %d, want 25", base)
	}
	oneHour := c.CalculatePoints(TierBronze, ExtendedVisitDetail{Duration: 61 * time.Minute})
	if oneHour != 40 {
		t.Fatalf("1h visit = %d, want 40", oneHour)
	}
	twoHours := c.CalculatePoints(TierBronze, ExtendedVisitDetail{Duration: 3 * time.Hour})
	if twoHours != 70 {
		t.Fatalf("2h+ visit = %d, want 70 (both bonuses)", twoHours)
	}
}

func TestCalculateFirstVisitBonus(t *testing.T) {
	c := testCalculator(t)
	got := c.CalculatePoints(TierBronze, VisitDetail{FirstTime: true})
	if got != 150 { // 50 base + 100 first-time bonus
		t.Fatalf("first visit = %d, want 150", got)
	}
}

func TestCalculateNoMultiplierAction(t *testing.T) {
	c := testCalculator(t)
	// referral rule has no tier multiplier: same award at any tier
	if c.CalculatePoints(TierBronze, ReferralDetail{}) != c.CalculatePoints(TierBlack, ReferralDetail{}) {
		t.Fatal("referral award must not vary with tier")
	}
}

func TestCalculateUnknownAction(t *testing.T) {
	c := testCalculator(t)
	if got := c.CalculatePoints(TierBronze, BirthdayDetail{}); got != 0 {
		t.Fatalf("unconfigured action = %d, want 0", got)
	}
}

package core

import "testing"

func testTable(t *testing.T) *TierTable {
	t.Helper()
	tt, err := NewTierTable([]TierConfig{
		{Level: TierBronze, Name: "Bronze", MinPoints: 0, MaxPoints: 999, Multiplier: 1.0},
		{Level: TierSilver, Name: "Silver", MinPoints: 1000, MaxPoints: 4999, Multiplier: 1.2},
		{Level: TierGold, Name: "Gold", MinPoints: 5000, MaxPoints: 19999, Multiplier: 1.5},
		{Level: TierBlack, Name: "Black", MinPoints: 20000, MaxPoints: -1, Multiplier: 2.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tt
}

func TestTierFromPointsMonotonic(t *testing.T) {
	tt := testTable(t)
	prev := 0
	for points := int64(0); points <= 25000; points += 50 {
		rank := tt.TierFromPoints(points).Rank()
		if rank < prev {
			t.Fatalf("tier rank decreased at %d points", points)
		}
		prev = rank
	}
}

func TestTierThresholds(t *testing.T) {
	tt := testTable(t)
	cases := []struct {
		points int64
		want   TierLevel
	}{
		{0, TierBronze}, {999, TierBronze}, {1000, TierSilver},
		{4999, TierSilver}, {5000, TierGold}, {19999, TierGold}, {20000, TierBlack},
	}
	for _, c := range cases {
		if got := tt.TierFromPoints(c.points); got != c.want {
			t.Fatalf("TierFromPoints(%d) = %s, want %s", c.points, got, c.want)
		}
	}
}

func TestPointsToNextTier(t *testing.T) {
	tt := testTable(t)
	next, delta := tt.PointsToNextTier(960)
	if next != TierSilver || delta != 40 {
		t.Fatalf("got %s/%d, want silver/40", next, delta)
	}
	// at and above the top threshold there is no next tier
	for _, points := range []int64{20000, 50000} {
		next, delta = tt.PointsToNextTier(points)
		if next != "" || delta != 0 {
			t.Fatalf("PointsToNextTier(%d) = %s/%d, want none/0", points, next, delta)
		}
	}
}

func TestTierRankOrdering(t *testing.T) {
	if !TierGold.AtLeast(TierSilver) {
		t.Fatal("gold should rank at least silver")
	}
	if TierBronze.AtLeast(TierBlack) {
		t.Fatal("bronze should not rank at least black")
	}
	if TierLevel("platinum").AtLeast(TierBronze) {
		t.Fatal("unknown tier must never pass a rank check")
	}
}

func TestNewTierTableRejectsBadInput(t *testing.T) {
	if _, err := NewTierTable(nil); err == nil {
		t.Fatal("expected error for empty table")
	}
	if _, err := NewTierTable([]TierConfig{{Level: TierBronze, MinPoints: 100}}); err == nil {
		t.Fatal("expected error for non-zero base threshold")
	}
	if _, err := NewTierTable([]TierConfig{
		{Level: TierBronze, MinPoints: 0},
		{Level: TierSilver, MinPoints: 0},
	}); err == nil {
		t.Fatal("expected error for non-ascending thresholds")
	}
}

package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memRewardStore struct {
	rewards map[string]*Triggered
}

func newMemRewardStore(rs ...*Triggered) *memRewardStore {
	s := &memRewardStore{rewards: make(map[string]*Triggered)}
	for _, r := range rs {
		cp := *r
		s.rewards[r.ID] = &cp
	}
	return s
}

func (s *memRewardStore) GetTriggeredReward(_ context.Context, id string) (*Triggered, error) {
	r, ok := s.rewards[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memRewardStore) UpdateTriggeredReward(_ context.Context, r *Triggered) error {
	cp := *r
	s.rewards[r.ID] = &cp
	return nil
}

func TestRedeemOnce(t *testing.T) {
	now := time.Date(2025, 3, 7, 18, 0, 0, 0, time.UTC)
	store := newMemRewardStore(&Triggered{
		ID:        "rw-1",
		Status:    StatusTriggered,
		ExpiresAt: now.Add(time.Hour),
	})
	r := NewRedeemer(store, WithRedeemerClock(func() time.Time { return now }))

	got, err := r.Redeem(context.Background(), "rw-1")
	require.NoError(t, err)
	require.Equal(t, StatusRedeemed, got.Status)
	require.NotNil(t, got.RedeemedAt)
	require.Equal(t, now, *got.RedeemedAt)

	_, err = r.Redeem(context.Background(), "rw-1")
	require.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestRedeemExpired(t *testing.T) {
	now := time.Date(2025, 3, 7, 18, 0, 0, 0, time.UTC)
	store := newMemRewardStore(&Triggered{
		ID:        "rw-stale",
		Status:    StatusTriggered,
		ExpiresAt: now.Add(-time.Minute),
	})
	r := NewRedeemer(store, WithRedeemerClock(func() time.Time { return now }))

	_, err := r.Redeem(context.Background(), "rw-stale")
	require.ErrorIs(t, err, ErrExpired)

	// the lazy settle persists the expiry
	saved, err := store.GetTriggeredReward(context.Background(), "rw-stale")
	require.NoError(t, err)
	require.Equal(t, StatusExpired, saved.Status)

	_, err = r.Redeem(context.Background(), "rw-stale")
	require.ErrorIs(t, err, ErrExpired)
}

func TestRedeemUnknown(t *testing.T) {
	r := NewRedeemer(newMemRewardStore())
	_, err := r.Redeem(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

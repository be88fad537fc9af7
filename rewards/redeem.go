package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Redemption failures are user-facing no-ops with a deterministic reason,
// never system faults.
var (
	ErrNotFound        = errors.New("reward not found")
	ErrAlreadyRedeemed = errors.New("reward already redeemed")
	ErrExpired         = errors.New("reward expired")
)

// RewardStore is the slice of persistence redemption needs.
type RewardStore interface {
	GetTriggeredReward(ctx context.Context, id string) (*Triggered, error)
	UpdateTriggeredReward(ctx context.Context, r *Triggered) error
}

// Redeemer drives the triggered → redeemed/expired state machine.
type Redeemer struct {
	store RewardStore
	now   func() time.Time
}

// NewRedeemer builds a redeemer. Pass a clock override for tests via
// WithRedeemerClock.
func NewRedeemer(store RewardStore, opts ...RedeemerOption) *Redeemer {
	r := &Redeemer{store: store, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RedeemerOption configures a Redeemer.
type RedeemerOption func(*Redeemer)

// WithRedeemerClock overrides the time source.
func WithRedeemerClock(now func() time.Time) RedeemerOption {
	return func(r *Redeemer) { r.now = now }
}

// Redeem transitions a triggered reward to redeemed. Status is monotonic:
// redeeming an already-redeemed or expired reward fails deterministically.
func (r *Redeemer) Redeem(ctx context.Context, rewardID string) (*Triggered, error) {
	tr, err := r.store.GetTriggeredReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, ErrNotFound
	}

	now := r.now().UTC()
	switch tr.Status {
	case StatusRedeemed:
		return nil, ErrAlreadyRedeemed
	case StatusExpired:
		return nil, ErrExpired
	case StatusTriggered:
		if now.After(tr.ExpiresAt) {
			// lazily settle the expiry before rejecting
			tr.Status = StatusExpired
			if uerr := r.store.UpdateTriggeredReward(ctx, tr); uerr != nil {
				return nil, fmt.Errorf("settle expired reward: %w", uerr)
			}
			return nil, ErrExpired
		}
	default:
		return nil, fmt.Errorf("reward %s in unknown status %q", rewardID, tr.Status)
	}

	tr.Status = StatusRedeemed
	tr.RedeemedAt = &now
	if err := r.store.UpdateTriggeredReward(ctx, tr); err != nil {
		return nil, fmt.Errorf("persist redemption: %w", err)
	}
	return tr, nil
}

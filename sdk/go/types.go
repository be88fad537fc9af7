package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// EventAck is the server's acknowledgement of a webhook submission.
// Result is left raw so callers only decode the parts they care about.
type EventAck struct {
	Processed bool            `json:"processed"`
	Reason    string          `json:"reason,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// UserTier mirrors the public JSON surface of the tier endpoint.
type UserTier struct {
	UserID           string    `json:"user_id"`
	CurrentTier      string    `json:"current_tier"`
	Points           int64     `json:"points"`
	PointsToNextTier int64     `json:"points_to_next_tier"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TriggeredReward mirrors a triggered reward as served by the API.
type TriggeredReward struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Status         string     `json:"status"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RedeemedAt     *time.Time `json:"redeemed_at,omitempty"`
	RedemptionCode string     `json:"redemption_code"`
	EstimatedValue int64      `json:"estimated_value"`
}

// PassportState bundles the passports endpoint response. Both halves are
// left raw; the stamp and collection shapes are versioned server-side.
type PassportState struct {
	Active     json.RawMessage `json:"active"`
	Collection json.RawMessage `json:"collection"`
}

// Discovery describes what a venue visit could unlock right now.
type Discovery struct {
	Promotions json.RawMessage `json:"promotions"`
	HappyHours json.RawMessage `json:"happy_hours"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// Redemption outcomes surfaced as sentinel errors.
var (
	ErrRewardNotFound        = errors.New("reward not found")
	ErrRewardAlreadyRedeemed = errors.New("reward already redeemed")
	ErrRewardExpired         = errors.New("reward expired")
)

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")

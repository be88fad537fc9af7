package sdk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"geotrigger/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the geotrigger HTTP + WebSocket API.
type Client struct {
	baseURL       string
	wsURL         string
	httpClient    *http.Client
	headers       http.Header
	signingSecret []byte
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithSigningSecret signs webhook submissions with an HMAC-SHA256 of the body,
// matching the server's signature verification.
func WithSigningSecret(secret string) Option {
	return func(c *Client) {
		if secret != "" {
			c.signingSecret = []byte(secret)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// SubmitEvent posts a geofence webhook payload and returns the engine's
// acknowledgement. Ack.Processed is false for suppressed events.
func (c *Client) SubmitEvent(ctx context.Context, payload any) (EventAck, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return EventAck{}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/webhooks/geofence", bytes.NewReader(body))
	if err != nil {
		return EventAck{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.signingSecret) > 0 {
		mac := hmac.New(sha256.New, c.signingSecret)
		mac.Write(body)
		req.Header.Set("X-Geofence-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return EventAck{}, err
	}
	defer resp.Body.Close()

	var ack EventAck
	if err := decodeJSON(resp, &ack); err != nil {
		return EventAck{}, err
	}
	return ack, nil
}

// RedeemReward transitions a triggered reward to redeemed.
func (c *Client) RedeemReward(ctx context.Context, rewardID string) (TriggeredReward, error) {
	if strings.TrimSpace(rewardID) == "" {
		return TriggeredReward{}, errors.New("reward id is required")
	}
	u := fmt.Sprintf("%s/rewards/%s/redeem", c.baseURL, url.PathEscape(rewardID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return TriggeredReward{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TriggeredReward{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return TriggeredReward{}, ErrRewardNotFound
	case http.StatusConflict:
		return TriggeredReward{}, ErrRewardAlreadyRedeemed
	case http.StatusGone:
		return TriggeredReward{}, ErrRewardExpired
	}

	var tr TriggeredReward
	if err := decodeJSON(resp, &tr); err != nil {
		return TriggeredReward{}, err
	}
	return tr, nil
}

// GetUserTier fetches the user's current tier standing.
func (c *Client) GetUserTier(ctx context.Context, userID string) (UserTier, error) {
	if strings.TrimSpace(userID) == "" {
		return UserTier{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/tier", c.baseURL, url.PathEscape(userID))

	var tier UserTier
	if err := c.getJSON(ctx, u, &tier); err != nil {
		return UserTier{}, err
	}
	return tier, nil
}

// GetUserRewards lists every reward ever triggered for the user.
func (c *Client) GetUserRewards(ctx context.Context, userID string) ([]TriggeredReward, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/rewards", c.baseURL, url.PathEscape(userID))

	var body struct {
		Rewards []TriggeredReward `json:"rewards"`
	}
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.Rewards, nil
}

// GetUserPassports fetches the user's active passports and lifetime collection.
func (c *Client) GetUserPassports(ctx context.Context, userID string) (PassportState, error) {
	if strings.TrimSpace(userID) == "" {
		return PassportState{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/passports", c.baseURL, url.PathEscape(userID))

	var st PassportState
	if err := c.getJSON(ctx, u, &st); err != nil {
		return PassportState{}, err
	}
	return st, nil
}

// GetVenuePromotions fetches what a visit to the venue could unlock.
// userID is optional; with it the server applies tier and visit filters.
func (c *Client) GetVenuePromotions(ctx context.Context, venueID, userID string) (Discovery, error) {
	if strings.TrimSpace(venueID) == "" {
		return Discovery{}, errors.New("venue id is required")
	}
	u, err := url.Parse(fmt.Sprintf("%s/venues/%s/promotions", c.baseURL, url.PathEscape(venueID)))
	if err != nil {
		return Discovery{}, err
	}
	if userID != "" {
		q := u.Query()
		q.Set("user_id", userID)
		u.RawQuery = q.Encode()
	}

	var d Discovery
	if err := c.getJSON(ctx, u.String(), &d); err != nil {
		return Discovery{}, err
	}
	return d, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.getJSON(ctx, c.baseURL+"/healthz", &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits domain events.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.DomainEvent, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.DomainEvent, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.DomainEvent
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

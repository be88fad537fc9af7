package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	wsadapter "geotrigger/adapters/websocket"
	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/leaderboard"
	"geotrigger/metrics"
	"geotrigger/realtime"
	"geotrigger/rewards"
	"geotrigger/webhook"
)

// SignatureHeader carries the provider's hex HMAC of the raw webhook body.
const SignatureHeader = "X-Geofence-Signature"

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// MaxBodyBytes caps the accepted webhook payload size. Zero means 1 MiB.
	MaxBodyBytes int64
}

// RewardsLister is the optional read surface behind GET /users/{id}/rewards.
// The bundled stores implement it.
type RewardsLister interface {
	UserRewards(ctx context.Context, user core.UserID) ([]*rewards.Triggered, error)
}

// Deps bundles the services the API fronts. Hub, Bus, Metrics, Lister, and
// Board may be nil; the corresponding surface is then disabled.
type Deps struct {
	Orchestrator *engine.Orchestrator
	Guard        *webhook.Guard
	Redeemer     *rewards.Redeemer
	Evaluator    *rewards.Evaluator
	Repo         engine.Repository
	Lister       RewardsLister
	Hub          *realtime.Hub
	Bus          *engine.EventBus
	Metrics      *metrics.Metrics
	Board        leaderboard.Board
}

// NewMux builds an http.Handler exposing the reward trigger REST API and
// WebSocket stream. Routes:
//   - POST {prefix}/webhooks/geofence
//   - POST {prefix}/rewards/{id}/redeem
//   - GET  {prefix}/users/{id}/tier
//   - GET  {prefix}/users/{id}/rewards
//   - GET  {prefix}/users/{id}/passports
//   - GET  {prefix}/venues/{id}/promotions?user_id={id}
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(deps Deps, opts Options) http.Handler {
	mux := http.NewServeMux()
	api := &server{deps: deps, opts: opts}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), api.healthCheck)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/webhooks/geofence"), api.handleWebhook)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/rewards/"), api.handleRewards)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/users/"), api.handleUsers)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/venues/"), api.handleVenues)
	if deps.Board != nil {
		mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), api.handleLeaderboard)
	}

	// WebSocket events
	if deps.Hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(deps.Hub))
	}

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

type server struct {
	deps Deps
	opts Options
}

// webhookResponse acknowledges a payload. Suppressed events are a 200 with
// Processed=false so the provider does not retry them.
type webhookResponse struct {
	Processed bool                `json:"processed"`
	Reason    string              `json:"reason,omitempty"`
	Result    *engine.EventResult `json:"result,omitempty"`
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required", nil)
		return
	}

	maxBody := s.opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "could not read body", nil)
		return
	}
	if int64(len(body)) > maxBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "payload exceeds size limit", nil)
		return
	}

	if !s.deps.Guard.VerifySignature(body, r.Header.Get(SignatureHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed", nil)
		return
	}

	var payload webhook.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed webhook payload", nil)
		return
	}

	verdict, err := s.deps.Guard.Validate(r.Context(), &payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveValidation(verdict)
	}
	if !verdict.Accepted {
		writeError(w, http.StatusUnprocessableEntity, "rejected", verdict.Reason, nil)
		return
	}
	if !verdict.Process {
		writeJSON(w, webhookResponse{Processed: false, Reason: verdict.Reason})
		return
	}

	started := time.Now()
	result, err := s.deps.Orchestrator.HandleLocationEvent(r.Context(), payload.ToLocationEvent())
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveProcessing(time.Since(started))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	writeJSON(w, webhookResponse{Processed: true, Result: result})
}

// handleRewards serves POST /rewards/{id}/redeem.
func (s *server) handleRewards(w http.ResponseWriter, r *http.Request) {
	parts := split(s.trimPrefix(r.URL.Path), '/')
	if r.Method != http.MethodPost || len(parts) != 3 || parts[2] != "redeem" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	rewardID := parts[1]

	tr, err := s.deps.Redeemer.Redeem(r.Context(), rewardID)
	switch {
	case errors.Is(err, rewards.ErrNotFound):
		writeError(w, http.StatusNotFound, "reward_not_found", "reward not found", nil)
		return
	case errors.Is(err, rewards.ErrAlreadyRedeemed):
		writeError(w, http.StatusConflict, "already_redeemed", "reward was already redeemed", nil)
		return
	case errors.Is(err, rewards.ErrExpired):
		writeError(w, http.StatusGone, "reward_expired", "reward has expired", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(r.Context(), core.NewRewardRedeemed(tr.UserID, tr.ID))
	}
	writeJSON(w, tr)
}

// handleUsers serves GET /users/{id}/{tier|rewards|passports}.
func (s *server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required", nil)
		return
	}
	parts := split(s.trimPrefix(r.URL.Path), '/')
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	user, err := core.NormalizeUserID(core.UserID(parts[1]))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}

	switch parts[2] {
	case "tier":
		tier, err := s.deps.Repo.GetUserTier(r.Context(), user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if tier == nil {
			writeError(w, http.StatusNotFound, "tier_not_found", "user has no tier yet", nil)
			return
		}
		writeJSON(w, tier)
	case "rewards":
		if s.deps.Lister == nil {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		list, err := s.deps.Lister.UserRewards(r.Context(), user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"rewards": list})
	case "passports":
		active, err := s.deps.Repo.GetUserActivePassports(r.Context(), user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		collection, err := s.deps.Repo.GetPassportCollection(r.Context(), user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"active": active, "collection": collection})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

// handleVenues serves GET /venues/{id}/promotions, the discovery surface
// apps poll to show what a visit could unlock.
func (s *server) handleVenues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required", nil)
		return
	}
	parts := split(s.trimPrefix(r.URL.Path), '/')
	if len(parts) != 3 || parts[2] != "promotions" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	venueID := core.VenueID(parts[1])

	venue, err := s.deps.Repo.FindVenueByID(r.Context(), venueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	if venue == nil {
		writeError(w, http.StatusNotFound, "venue_not_found", "venue not found", nil)
		return
	}

	var tier *core.UserTier
	visit := rewards.VisitContext{}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		user, err := core.NormalizeUserID(core.UserID(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
			return
		}
		tier, err = s.deps.Repo.GetUserTier(r.Context(), user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		count, err := s.deps.Repo.GetVenueVisitCount(r.Context(), user, venueID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		visit.VisitCount = count
		visit.FirstVisit = count == 0
	}

	promos, happyHours := s.deps.Evaluator.Discover(r.Context(), venueID, tier, visit)
	writeJSON(w, map[string]any{"promotions": promos, "happy_hours": happyHours})
}

// handleLeaderboard serves GET /leaderboard?n=, the top point earners.
func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required", nil)
		return
	}
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "n must be between 1 and 100", nil)
			return
		}
		n = parsed
	}
	writeJSON(w, map[string]any{"standings": s.deps.Board.TopN(n)})
}

// healthCheck verifies the service is working properly
func (s *server) healthCheck(w http.ResponseWriter, r *http.Request) {
	// Verify storage works with a lightweight directory probe that does not
	// affect real data.
	_, err := s.deps.Repo.FindUserByID(r.Context(), core.UserID("healthcheck_probe"))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, status)
}

func (s *server) trimPrefix(path string) string {
	prefix := s.opts.PathPrefix
	if prefix != "" && len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		path = path[len(prefix):]
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return path
}

// Package push delivers geofence notifications to external push gateways.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"geotrigger/core"
)

// Sink posts notifications to configured push-gateway endpoints.
// It is synchronous for determinism; keep gateways fast or front them
// with a queue if delivery latency becomes a problem.
type Sink struct {
	client    *http.Client
	endpoints []string
	logger    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a push sink. With no endpoints the sink logs deliveries
// and drops them, which is the development default.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// SendGeofenceNotification posts the notification JSON to every endpoint.
// A gateway rejection fails the send so the caller's per-step isolation
// can record it; the remaining endpoints are still attempted.
func (s *Sink) SendGeofenceNotification(ctx context.Context, n *core.Notification) error {
	if len(s.endpoints) == 0 {
		s.logger.Info("notification (no push gateway configured)",
			"user", n.UserID, "type", n.Type, "title", n.Title)
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	var firstErr error
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("push delivery failed", "endpoint", ep, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.logger.Warn("push gateway rejected notification",
				"endpoint", ep, "status", resp.StatusCode)
			if firstErr == nil {
				firstErr = fmt.Errorf("push gateway %s returned %d", ep, resp.StatusCode)
			}
		}
	}
	return firstErr
}

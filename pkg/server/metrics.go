package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP and WebSocket)
	ActiveConnections atomic.Int64 // connections currently being served
	SuccessfulAuths   atomic.Int64
	FailedAuths       atomic.Int64
	DuplicateLogins   atomic.Int64 // valid credentials rejected with "Already Logged In!"
	TotalDisconnects  atomic.Int64

	// Message counters
	DirectMessages    atomic.Int64
	BroadcastMessages atomic.Int64
	GroupMessages     atomic.Int64
	Deliveries        atomic.Int64 // individual sends that reached a recipient
	DeliveryFailures  atomic.Int64 // individual sends that failed during fan-out

	// Group counters
	GroupsCreated atomic.Int64
	GroupsDeleted atomic.Int64

	// Input counters
	RateLimited      atomic.Int64
	OversizeMessages atomic.Int64
	InvalidCommands  atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Sessions int `json:"sessions"`
	Groups   int `json:"groups"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	DuplicateLogins   int64 `json:"duplicate_logins"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	DirectMessages    int64 `json:"direct_messages"`
	BroadcastMessages int64 `json:"broadcast_messages"`
	GroupMessages     int64 `json:"group_messages"`
	Deliveries        int64 `json:"deliveries"`
	DeliveryFailures  int64 `json:"delivery_failures"`

	GroupsCreated int64 `json:"groups_created"`
	GroupsDeleted int64 `json:"groups_deleted"`

	RateLimited      int64 `json:"rate_limited"`
	OversizeMessages int64 `json:"oversize_messages"`
	InvalidCommands  int64 `json:"invalid_commands"`
}

// Snapshot returns a read-consistent snapshot of all counters. Sessions and
// Groups are gauges supplied by the caller.
func (m *Metrics) Snapshot(sessions, groups int) MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		Sessions:          sessions,
		Groups:            groups,
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		DuplicateLogins:   m.DuplicateLogins.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		DirectMessages:    m.DirectMessages.Load(),
		BroadcastMessages: m.BroadcastMessages.Load(),
		GroupMessages:     m.GroupMessages.Load(),
		Deliveries:        m.Deliveries.Load(),
		DeliveryFailures:  m.DeliveryFailures.Load(),
		GroupsCreated:     m.GroupsCreated.Load(),
		GroupsDeleted:     m.GroupsDeleted.Load(),
		RateLimited:       m.RateLimited.Load(),
		OversizeMessages:  m.OversizeMessages.Load(),
		InvalidCommands:   m.InvalidCommands.Load(),
	}
}

// JSON renders a snapshot as indented JSON.
func (s MetricsSnapshot) JSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a metrics summary to the logger.
func (s MetricsSnapshot) LogSummary() {
	slog.Info("metrics",
		"uptime", s.Uptime,
		"sessions", s.Sessions,
		"groups", s.Groups,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"auth_failed", s.FailedAuths,
		"direct_msgs", s.DirectMessages,
		"broadcast_msgs", s.BroadcastMessages,
		"group_msgs", s.GroupMessages,
		"delivery_failures", s.DeliveryFailures,
	)
}

// startPeriodicLog logs a summary every interval until done is closed.
func (s *Server) startPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Snapshot().LogSummary()
			}
		}
	}()
}

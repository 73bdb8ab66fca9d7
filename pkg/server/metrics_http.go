package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// metricsHandler serves /metrics in Prometheus text exposition format,
// /metrics.json and /healthz.
func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.Snapshot().JSON()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// startMetricsHTTP serves the metrics endpoints on ln in the background.
// The returned server is closed by Shutdown.
func (s *Server) startMetricsHTTP(ln net.Listener) *http.Server {
	srv := &http.Server{
		Handler:           s.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics HTTP listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()
	return srv
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP chatd_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE chatd_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "chatd_uptime_seconds %f\n", uptime)

	write("chatd_sessions", "Authenticated sessions.", "gauge", int64(s.sessions.Count()))
	write("chatd_groups", "Existing groups.", "gauge", int64(s.groups.Count()))

	write("chatd_connections_active", "Connections currently being served.", "gauge",
		m.ActiveConnections.Load())
	write("chatd_connections_total", "Lifetime connections accepted.", "counter",
		m.TotalConnections.Load())
	write("chatd_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("chatd_auth_success_total", "Successful authentication attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("chatd_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())
	write("chatd_auth_duplicate_total", "Logins rejected because the user was already logged in.", "counter",
		m.DuplicateLogins.Load())

	write("chatd_direct_messages_total", "Direct messages relayed.", "counter",
		m.DirectMessages.Load())
	write("chatd_broadcast_messages_total", "Broadcast messages relayed.", "counter",
		m.BroadcastMessages.Load())
	write("chatd_group_messages_total", "Group messages relayed.", "counter",
		m.GroupMessages.Load())
	write("chatd_deliveries_total", "Individual sends delivered to a recipient.", "counter",
		m.Deliveries.Load())
	write("chatd_delivery_failures_total", "Individual sends that failed during fan-out.", "counter",
		m.DeliveryFailures.Load())

	write("chatd_groups_created_total", "Groups created.", "counter",
		m.GroupsCreated.Load())
	write("chatd_groups_deleted_total", "Groups deleted.", "counter",
		m.GroupsDeleted.Load())

	write("chatd_rate_limited_total", "Commands rejected by the rate limiter.", "counter",
		m.RateLimited.Load())
	write("chatd_oversize_messages_total", "Inbound messages over the size limit.", "counter",
		m.OversizeMessages.Load())
	write("chatd_invalid_commands_total", "Unrecognised commands.", "counter",
		m.InvalidCommands.Load())
}

package gateway

import (
	"net/http"
	"time"

	"github.com/mattjoyce/flowgate/internal/events"
)

// recentFailureLimit caps the failures listed by /healthz.
const recentFailureLimit = 5

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status         string         `json:"status"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	QueueDepth     int            `json:"queue_depth"`
	Signing        bool           `json:"signing"`
	FailuresTotal  int64          `json:"failures_total"`
	RecentFailures []events.Event `json:"recent_failures"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	hub := s.deps.Events
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    s.deps.Tasks.Depth(),
		Signing:       s.deps.Verifier.Enabled(),
		FailuresTotal: hub.Count(events.TypeTaskFailed) +
			hub.Count(events.TypeTaskPanicked) +
			hub.Count(events.TypeTaskDropped),
		RecentFailures: hub.Recent(recentFailureLimit,
			events.TypeTaskFailed, events.TypeTaskPanicked, events.TypeTaskDropped),
	}
	s.respondJSON(w, http.StatusOK, resp)
}

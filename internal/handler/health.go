package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/openclaw/chat-relay-go/internal/config"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// SubscriberCounter reports how many operators follow the event stream.
type SubscriberCounter interface {
	TotalClients() int
}

type HealthHandler struct {
	db      Pinger
	monitor SessionMonitor
	events  SubscriberCounter
}

// NewHealthHandler builds the health endpoint. events may be nil.
func NewHealthHandler(db Pinger, monitor SessionMonitor, events SubscriberCounter) *HealthHandler {
	return &HealthHandler{db: db, monitor: monitor, events: events}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":    status,
		"sessions":  h.monitor.SessionCount(),
		"timestamp": time.Now().UnixMilli(),
	}
	if h.events != nil {
		body["eventSubscribers"] = h.events.TotalClients()
	}
	writeJSON(w, code, body)
}

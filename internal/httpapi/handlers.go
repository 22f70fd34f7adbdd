// Package httpapi serves the relay's plain-HTTP surface: liveness, metrics,
// and the per-room diagnostic status query.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gridlink/relay/internal/logging"
	"gridlink/relay/internal/protocol"
	"gridlink/relay/internal/room"
	"gridlink/relay/internal/state"
)

// ServiceName identifies the relay in the liveness probe.
const ServiceName = "gridlink-relay"

// StatusFunc resolves the diagnostic snapshot for a room.
type StatusFunc func(ctx context.Context, roomID string) (room.Status, error)

// StatsFunc returns the shared room counters.
type StatsFunc func() room.Snapshot

// Options configures the HandlerSet.
type Options struct {
	Logger            *logging.Logger
	Status            StatusFunc
	Stats             StatsFunc
	AuthEnabled       bool
	OriginsRestricted bool
	TimeSource        func() time.Time
}

// HandlerSet bundles the relay's operational handlers.
type HandlerSet struct {
	logger            *logging.Logger
	status            StatusFunc
	stats             StatsFunc
	authEnabled       bool
	originsRestricted bool
	now               func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:            logger,
		status:            opts.Status,
		stats:             opts.Stats,
		authEnabled:       opts.AuthEnabled,
		originsRestricted: opts.OriginsRestricted,
		now:               now,
	}
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(r *mux.Router) {
	if r == nil {
		return
	}
	r.HandleFunc("/livez", h.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{roomID}/status", h.RoomStatusHandler()).Methods(http.MethodGet)
}

// LivenessHandler reports service identity and which protections are active.
// It touches no room state.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Service           string `json:"service"`
		Status            string `json:"status"`
		Timestamp         string `json:"timestamp"`
		ControllerAuth    bool   `json:"controller_auth_enabled"`
		OriginsRestricted bool   `json:"origins_restricted"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Service:           ServiceName,
			Status:            "alive",
			Timestamp:         h.now().UTC().Format(time.RFC3339Nano),
			ControllerAuth:    h.authEnabled,
			OriginsRestricted: h.originsRestricted,
		})
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snapshot room.Snapshot
		if h.stats != nil {
			snapshot = h.stats()
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP relay_rooms Rooms currently resident in memory.\n")
		fmt.Fprintf(w, "# TYPE relay_rooms gauge\n")
		fmt.Fprintf(w, "relay_rooms %d\n", snapshot.Rooms)

		fmt.Fprintf(w, "# HELP relay_connections Currently open WebSocket connections.\n")
		fmt.Fprintf(w, "# TYPE relay_connections gauge\n")
		fmt.Fprintf(w, "relay_connections %d\n", snapshot.Connections)

		fmt.Fprintf(w, "# HELP relay_broadcasts_total Total accepted messages fanned out.\n")
		fmt.Fprintf(w, "# TYPE relay_broadcasts_total counter\n")
		fmt.Fprintf(w, "relay_broadcasts_total %d\n", snapshot.Broadcasts)

		fmt.Fprintf(w, "# HELP relay_dropped_sends_total Connections dropped for stalled outbound queues.\n")
		fmt.Fprintf(w, "# TYPE relay_dropped_sends_total counter\n")
		fmt.Fprintf(w, "relay_dropped_sends_total %d\n", snapshot.DroppedSends)
	}
}

// RoomStatusHandler returns the diagnostic room snapshot: connection count
// and current state. Not used by clients during normal operation.
func (h *HandlerSet) RoomStatusHandler() http.HandlerFunc {
	type response struct {
		RoomID           string          `json:"room_id"`
		Connections      int             `json:"connections"`
		Resident         bool            `json:"resident"`
		Computer         *state.Computer `json:"computer,omitempty"`
		FocusedNodeID    *string         `json:"focusedNodeId"`
		AmbientIntensity float64         `json:"ambientIntensity"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomID"]
		if err := protocol.ValidateRoomID(roomID); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if h.status == nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		status, err := h.status(r.Context(), roomID)
		if err != nil {
			h.logger.Error("room status query failed",
				logging.String("room_id", roomID), logging.Error(err))
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		resp := response{
			RoomID:      roomID,
			Connections: status.Connections,
			Resident:    status.Resident,
		}
		if status.State != nil {
			resp.Computer = status.State.Computer
			resp.FocusedNodeID = status.State.FocusedNodeID
			resp.AmbientIntensity = status.State.AmbientIntensity
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

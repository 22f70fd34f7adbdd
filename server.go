package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gridlink/relay/internal/auth"
	"gridlink/relay/internal/config"
	"gridlink/relay/internal/httpapi"
	"gridlink/relay/internal/logging"
	"gridlink/relay/internal/protocol"
	"gridlink/relay/internal/room"
)

// Time allowed to write a frame to the peer.
const writeWait = 10 * time.Second

// Server is the admission and routing layer: it decides role and
// authorization for an upgrade request, then hands the connection to the
// room coordinator the path names.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	manager  *room.Manager
	gate     *auth.SecretGate
	upgrader websocket.Upgrader
}

func newServer(cfg *config.Config, log *logging.Logger, manager *room.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		manager: manager,
		gate:    auth.NewSecretGate(cfg.ControllerSecret),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin enforces the configured allow-list; an empty list is permissive.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Routes assembles the full HTTP surface.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(logging.HTTPTraceMiddleware(s.log))
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:            s.log,
		Status:            s.manager.Status,
		Stats:             s.manager.Stats,
		AuthEnabled:       s.cfg.ControllerAuthEnabled(),
		OriginsRestricted: s.cfg.OriginsRestricted(),
	})
	handlers.Register(r)
	r.HandleFunc("/ws/{roomID}", s.serveWS)
	return r
}

// serveWS admits one WebSocket participant. The role the registry sees is the
// one decided here, never the raw client request.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.LoggerFromContext(r.Context())

	roomID := mux.Vars(r)["roomID"]
	if err := protocol.ValidateRoomID(roomID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_room_id", err.Error())
		return
	}

	var role room.Role
	switch r.URL.Query().Get("role") {
	case "gm":
		role = room.RoleController
	case "player", "":
		role = room.RoleObserver
	default:
		writeError(w, http.StatusBadRequest, "bad_role", "role must be gm or player")
		return
	}

	if role == room.RoleController {
		if err := s.gate.Authorize(r); err != nil {
			logger.Warn("controller admission rejected",
				logging.String("room_id", roomID), logging.Error(err))
			writeError(w, http.StatusUnauthorized, "bad_secret", "controller secret missing or invalid")
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its response (including origin rejections).
		logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	client := s.manager.NewClient(role, func() { _ = conn.Close() })
	coordinator := s.manager.Attach(roomID, client)
	logger.Info("participant admitted",
		logging.String("room_id", roomID),
		logging.String("conn_id", client.ID().String()),
		logging.String("role", string(role)))

	go s.writePump(conn, client)
	go s.readPump(conn, client, coordinator)
}

// readPump relays inbound frames into the room until the socket dies, then
// detaches the client. It is the sole reader of the connection.
func (s *Server) readPump(conn *websocket.Conn, cl *room.Client, coordinator *room.Coordinator) {
	defer func() {
		coordinator.Detach(cl)
		_ = conn.Close()
	}()
	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(s.cfg.MaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read failed",
					logging.String("conn_id", cl.ID().String()), logging.Error(err))
			}
			return
		}
		coordinator.Deliver(cl, raw)
	}
}

// writePump drains the client's outbound queue onto the socket and keeps the
// connection alive with transport pings. It is the sole writer of the
// connection.
func (s *Server) writePump(conn *websocket.Conn, cl *room.Client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-cl.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The coordinator discarded this client.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

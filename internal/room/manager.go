package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"gridlink/relay/internal/journal"
	"gridlink/relay/internal/logging"
	"gridlink/relay/internal/state"
	"gridlink/relay/internal/store"
)

// Manager resolves room ids to live Coordinator instances, constructing them
// lazily. Every participant naming the same room reaches the same instance;
// a room evicted for inactivity is rebuilt from durable storage on the next
// connection.
type Manager struct {
	store       store.Store
	journalRoot string
	idleTimeout time.Duration
	sendBuffer  int
	log         *logging.Logger
	clock       func() time.Time
	stats       *Stats

	mu    sync.Mutex
	rooms map[string]*Coordinator
}

// ManagerOption customises Manager construction.
type ManagerOption func(*Manager)

// WithIdleTimeout overrides the room inactivity window.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithSendBuffer overrides the per-connection outbound queue depth.
func WithSendBuffer(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// WithJournalRoot enables per-room activity journals under the directory.
func WithJournalRoot(dir string) ManagerOption {
	return func(m *Manager) { m.journalRoot = dir }
}

// WithClock overrides the time source; primarily used in tests.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager wires the room registry to its durable store.
func NewManager(s store.Store, log *logging.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = logging.L()
	}
	m := &Manager{
		store:       s,
		idleTimeout: 15 * time.Minute,
		sendBuffer:  256,
		log:         log,
		clock:       time.Now,
		stats:       &Stats{},
		rooms:       make(map[string]*Coordinator),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Stats exposes the shared counters for the metrics endpoint.
func (m *Manager) Stats() Snapshot { return m.stats.Snapshot() }

// NewClient allocates a connection presence using the configured queue depth.
func (m *Manager) NewClient(role Role, onClose func()) *Client {
	return NewClient(role, m.sendBuffer, onClose)
}

// Attach registers the client with the room, creating or rehydrating the
// room as needed, and queues the client's init snapshot. The retry loop
// covers the window where a coordinator begins eviction between resolution
// and attach.
func (m *Manager) Attach(roomID string, cl *Client) *Coordinator {
	for {
		c := m.resolve(roomID)
		if c.attach(cl) {
			return c
		}
	}
}

// Status reports the diagnostic snapshot for a room. Rooms not currently in
// memory are answered from durable storage with zero connections.
func (m *Manager) Status(ctx context.Context, roomID string) (Status, error) {
	m.mu.Lock()
	c := m.rooms[roomID]
	m.mu.Unlock()
	if c != nil {
		if status, ok := c.status(); ok {
			return status, nil
		}
	}
	st, err := m.store.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Status{RoomID: roomID, State: state.NewRoomState()}, nil
		}
		return Status{}, err
	}
	return Status{RoomID: roomID, State: st}, nil
}

// Shutdown flushes and stops every resident room.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	coordinators := make([]*Coordinator, 0, len(m.rooms))
	for _, c := range m.rooms {
		coordinators = append(coordinators, c)
	}
	m.rooms = make(map[string]*Coordinator)
	m.mu.Unlock()

	for _, c := range coordinators {
		if ctx.Err() != nil {
			return
		}
		c.stop()
	}
}

func (m *Manager) resolve(roomID string) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rooms[roomID]; ok {
		return c
	}
	var jnl *journal.Journal
	if m.journalRoot != "" {
		opened, err := journal.Open(m.journalRoot, roomID, m.clock)
		if err != nil {
			m.log.Error("journal open failed",
				logging.String("room_id", roomID), logging.Error(err))
		} else {
			jnl = opened
		}
	}
	c := newCoordinator(roomID, m.store, jnl, m.idleTimeout, m.stats, m.log, m.clock, m.evict)
	m.rooms[roomID] = c
	m.stats.rooms.Add(1)
	m.log.Info("room created", logging.String("room_id", roomID))
	return c
}

// evict runs on the coordinator goroutine just before it closes down.
func (m *Manager) evict(c *Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[c.roomID]; ok && current == c {
		delete(m.rooms, c.roomID)
	}
}


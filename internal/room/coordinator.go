package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"gridlink/relay/internal/journal"
	"gridlink/relay/internal/logging"
	"gridlink/relay/internal/protocol"
	"gridlink/relay/internal/state"
	"gridlink/relay/internal/store"
)

const hydrateTimeout = 10 * time.Second

// Coordinator is the single-writer actor for one room. Every join, leave,
// inbound message, and status probe funnels through its command channel, so
// room state and the connection registry need no locks. The idle timer fires
// inside the same select loop, which makes the "still idle?" re-check at fire
// time atomic with message handling.
type Coordinator struct {
	roomID      string
	idleTimeout time.Duration
	log         *logging.Logger
	stats       *Stats
	journal     *journal.Journal
	persist     *persister
	clock       func() time.Time

	cmds    chan command
	done    chan struct{}
	onEvict func(*Coordinator)
}

// Status is the diagnostic snapshot served by the status endpoint.
type Status struct {
	RoomID      string
	Connections int
	Resident    bool
	State       *state.RoomState
}

type command interface{}

type joinCmd struct {
	client *Client
}

type leaveCmd struct {
	client *Client
}

type inboundCmd struct {
	client *Client
	data   []byte
}

type statusCmd struct {
	reply chan Status
}

type stopCmd struct {
	flushed chan struct{}
}

type errorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func newCoordinator(roomID string, st store.Store, jnl *journal.Journal, idleTimeout time.Duration, stats *Stats, log *logging.Logger, clock func() time.Time, onEvict func(*Coordinator)) *Coordinator {
	c := &Coordinator{
		roomID:      roomID,
		idleTimeout: idleTimeout,
		log:         log.With(logging.String("room_id", roomID)),
		stats:       stats,
		journal:     jnl,
		persist:     newPersister(st, roomID, log),
		clock:       clock,
		cmds:        make(chan command),
		done:        make(chan struct{}),
		onEvict:     onEvict,
	}
	go c.run(st)
	return c
}

// attach registers the client and queues its init snapshot. It reports false
// when the coordinator has already shut down, in which case the caller must
// resolve a fresh instance.
func (c *Coordinator) attach(cl *Client) bool {
	select {
	case c.cmds <- joinCmd{client: cl}:
		return true
	case <-c.done:
		return false
	}
}

// Detach removes the client from the registry. Safe to call after eviction.
func (c *Coordinator) Detach(cl *Client) {
	select {
	case c.cmds <- leaveCmd{client: cl}:
	case <-c.done:
	}
}

// Deliver hands an inbound frame to the room for dispatch. Frames arriving
// during shutdown are dropped; the connection is about to close anyway.
func (c *Coordinator) Deliver(cl *Client, data []byte) {
	select {
	case c.cmds <- inboundCmd{client: cl, data: data}:
	case <-c.done:
	}
}

func (c *Coordinator) status() (Status, bool) {
	reply := make(chan Status, 1)
	select {
	case c.cmds <- statusCmd{reply: reply}:
		return <-reply, true
	case <-c.done:
		return Status{}, false
	}
}

// stop flushes and terminates the room without the idle wait; used for
// process shutdown.
func (c *Coordinator) stop() {
	flushed := make(chan struct{})
	select {
	case c.cmds <- stopCmd{flushed: flushed}:
		<-flushed
	case <-c.done:
	}
}

func (c *Coordinator) run(durable store.Store) {
	st := c.hydrate(durable)
	conns := make(map[uuid.UUID]*Client)

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()
	lastActivity := c.clock()

	touch := func() {
		lastActivity = c.clock()
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(c.idleTimeout)
	}

	for {
		select {
		case cmd := <-c.cmds:
			switch cmd := cmd.(type) {
			case joinCmd:
				conns[cmd.client.id] = cmd.client
				c.stats.connections.Add(1)
				c.sendSnapshot(cmd.client, st, conns)
				c.log.Debug("connection opened",
					logging.String("conn_id", cmd.client.id.String()),
					logging.String("role", string(cmd.client.role)))
				touch()
			case leaveCmd:
				if _, ok := conns[cmd.client.id]; ok {
					c.discard(conns, cmd.client)
					c.log.Debug("connection closed",
						logging.String("conn_id", cmd.client.id.String()),
						logging.Int("remaining", len(conns)))
				}
				touch()
			case inboundCmd:
				if _, ok := conns[cmd.client.id]; !ok {
					break
				}
				if c.dispatch(st, conns, cmd.client, cmd.data) {
					touch()
				}
			case statusCmd:
				cmd.reply <- Status{
					RoomID:      c.roomID,
					Connections: len(conns),
					Resident:    true,
					State:       st.Clone(),
				}
			case stopCmd:
				for _, cl := range conns {
					c.discard(conns, cl)
				}
				c.release(st)
				close(cmd.flushed)
				close(c.done)
				return
			}
		case <-idle.C:
			// Both conditions re-checked at fire time: a connected room is
			// never reaped, and activity since arming rearms the timer.
			remaining := c.idleTimeout - c.clock().Sub(lastActivity)
			if len(conns) == 0 && remaining <= 0 {
				c.log.Info("room idle, releasing in-memory state")
				c.release(st)
				c.onEvict(c)
				close(c.done)
				return
			}
			if remaining <= 0 {
				remaining = c.idleTimeout
			}
			idle.Reset(remaining)
		}
	}
}

// hydrate loads the durable record, blocking this room's message handling
// until the state is in memory. A missing record starts the room empty; a
// failing store is logged and also starts empty so live sync keeps working.
func (c *Coordinator) hydrate(durable store.Store) *state.RoomState {
	ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
	defer cancel()
	st, err := durable.Load(ctx, c.roomID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Error("room state hydration failed", logging.Error(err))
		}
		return state.NewRoomState()
	}
	c.log.Debug("room state hydrated from durable storage")
	return st
}

// release flushes pending writes and closes the journal; the durable record
// survives the room's eviction from memory.
func (c *Coordinator) release(st *state.RoomState) {
	c.persist.close()
	if err := c.journal.Close(st); err != nil {
		c.log.Error("journal close failed", logging.Error(err))
	}
	c.stats.rooms.Add(-1)
}

// dispatch runs the full inbound pipeline for one frame and reports whether
// the message was accepted (and therefore counts as room activity).
func (c *Coordinator) dispatch(st *state.RoomState, conns map[uuid.UUID]*Client, sender *Client, raw []byte) bool {
	env, err := protocol.Decode(raw)
	if err != nil || !env.Type.Known() || env.Type == protocol.TypeInit {
		// Protocol noise: no error frame, no state change.
		c.log.Debug("discarding unrecognized frame",
			logging.String("conn_id", sender.id.String()))
		return false
	}

	switch env.Type {
	case protocol.TypePing:
		frame, err := protocol.Encode(protocol.TypePong, nil)
		if err == nil {
			c.sendTo(conns, sender, frame)
		}
		return true
	case protocol.TypePong:
		return false
	}

	if sender.role != RoleController {
		// Observers never mutate shared state. The rejection is deliberately
		// generic so the frame leaks nothing about role handling.
		c.sendErrorFrame(conns, sender, "")
		return false
	}

	value, canonical, err := protocol.Sanitize(env.Type, env.Payload)
	if err != nil {
		c.sendErrorFrame(conns, sender, err.Error())
		return false
	}

	switch v := value.(type) {
	case *state.Computer:
		st.SetComputer(v)
	case *protocol.NodeStatePayload:
		if !st.SetNodeState(v.NodeID, v.State) {
			c.sendErrorFrame(conns, sender, "unknown node id")
			return false
		}
	case *protocol.FocusPayload:
		if v.NodeID != nil && st.Computer.AccessPoint(*v.NodeID) == nil {
			c.sendErrorFrame(conns, sender, "unknown node id")
			return false
		}
		st.SetFocus(v.NodeID)
	case *protocol.IntensityPayload:
		st.SetIntensity(v.Value)
	}

	if env.Type.Persistable() {
		c.persist.queue(st.Clone())
	}

	frame, err := json.Marshal(protocol.Envelope{Type: env.Type, Payload: canonical})
	if err != nil {
		c.log.Error("frame encode failed", logging.Error(err))
		return false
	}
	c.broadcast(conns, sender, frame)

	if err := c.journal.Append(string(sender.role), string(env.Type), canonical); err != nil {
		c.log.Error("journal append failed", logging.Error(err))
	}
	return true
}

// broadcast fans the frame out to every open connection except the sender.
// Delivery is best-effort per connection: a peer with a full queue is
// discarded rather than allowed to stall the room.
func (c *Coordinator) broadcast(conns map[uuid.UUID]*Client, sender *Client, frame []byte) {
	for id, cl := range conns {
		if id == sender.id {
			continue
		}
		c.sendTo(conns, cl, frame)
	}
	c.stats.broadcasts.Add(1)
}

func (c *Coordinator) sendSnapshot(cl *Client, st *state.RoomState, conns map[uuid.UUID]*Client) {
	frame, err := protocol.Encode(protocol.TypeInit, st)
	if err != nil {
		c.log.Error("snapshot encode failed", logging.Error(err))
		return
	}
	c.sendTo(conns, cl, frame)
}

func (c *Coordinator) sendErrorFrame(conns map[uuid.UUID]*Client, cl *Client, reason string) {
	frame, err := protocol.Encode(protocol.TypeError, errorPayload{Code: "rejected", Reason: reason})
	if err != nil {
		return
	}
	c.sendTo(conns, cl, frame)
}

func (c *Coordinator) sendTo(conns map[uuid.UUID]*Client, cl *Client, frame []byte) {
	select {
	case cl.send <- frame:
	default:
		c.log.Warn("outbound queue full, dropping connection",
			logging.String("conn_id", cl.id.String()))
		c.stats.droppedSends.Add(1)
		c.discard(conns, cl)
	}
}

func (c *Coordinator) discard(conns map[uuid.UUID]*Client, cl *Client) {
	delete(conns, cl.id)
	cl.shutdown()
	c.stats.connections.Add(-1)
}

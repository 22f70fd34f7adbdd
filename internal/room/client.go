package room

import (
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Role tags a connection's privilege class.
type Role string

const (
	// RoleController may mutate shared room state.
	RoleController Role = "controller"
	// RoleObserver only receives broadcasts.
	RoleObserver Role = "observer"
)

// Client is one open connection's presence in a room: an identifier used to
// exclude the sender during broadcast, a role, and a buffered outbound queue
// drained by the transport's write pump. The coordinator goroutine is the
// only sender on and closer of the queue.
type Client struct {
	id      uuid.UUID
	role    Role
	send    chan []byte
	once    sync.Once
	onClose func()
}

// NewClient allocates a connection presence. onClose is invoked once when the
// coordinator discards the client, so the transport can tear the socket down.
func NewClient(role Role, buffer int, onClose func()) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:      uuid.Must(uuid.NewV4()),
		role:    role,
		send:    make(chan []byte, buffer),
		onClose: onClose,
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() uuid.UUID { return c.id }

// Role returns the role assigned at admission.
func (c *Client) Role() Role { return c.role }

// Outbound is the queue the transport write pump drains. It is closed when
// the coordinator discards the client.
func (c *Client) Outbound() <-chan []byte { return c.send }

// shutdown closes the outbound queue exactly once. Called only from the
// coordinator goroutine, so it never races a queued send.
func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.send)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

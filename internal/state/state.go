// Package state holds the authoritative room model shared between the
// coordinator, the durable store, and the status API.
package state

// NodeCategory classifies how an access point is reached.
type NodeCategory string

const (
	CategoryPhysical NodeCategory = "physical"
	CategoryRemote   NodeCategory = "remote"
	CategoryMagical  NodeCategory = "magical"
)

// Valid reports whether the category is one of the recognised values.
func (c NodeCategory) Valid() bool {
	switch c {
	case CategoryPhysical, CategoryRemote, CategoryMagical:
		return true
	}
	return false
}

// NodeState is the security posture of a single access point.
type NodeState string

const (
	NodeLocked   NodeState = "locked"
	NodeActive   NodeState = "active"
	NodeBreached NodeState = "breached"
	NodeAlarmed  NodeState = "alarmed"
)

// Valid reports whether the node state is one of the recognised values.
func (s NodeState) Valid() bool {
	switch s {
	case NodeLocked, NodeActive, NodeBreached, NodeAlarmed:
		return true
	}
	return false
}

// Position is a normalized 2-D layout coordinate; both axes are in [0,1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AccessPoint is one node in the puzzle graph.
type AccessPoint struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    NodeCategory `json:"category"`
	State       NodeState    `json:"state"`
	Position    Position     `json:"position"`
	Connections []string     `json:"connections"`
}

// Computer is the puzzle network a room synchronizes: a named graph of
// access points at a given security level.
type Computer struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Level        int           `json:"level"`
	Category     string        `json:"category"`
	AccessPoints []AccessPoint `json:"accessPoints"`
}

// AccessPoint returns the node with the given id, or nil if absent.
func (c *Computer) AccessPoint(id string) *AccessPoint {
	if c == nil {
		return nil
	}
	for i := range c.AccessPoints {
		if c.AccessPoints[i].ID == id {
			return &c.AccessPoints[i]
		}
	}
	return nil
}

// Clone deep-copies the computer so callers can hand it across goroutines.
func (c *Computer) Clone() *Computer {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AccessPoints = make([]AccessPoint, len(c.AccessPoints))
	for i, ap := range c.AccessPoints {
		clone.AccessPoints[i] = ap
		clone.AccessPoints[i].Connections = append([]string(nil), ap.Connections...)
	}
	return &clone
}

// RoomState is the authoritative payload for one room. A focused node that no
// longer exists in the computer is left dangling; lookups simply miss.
type RoomState struct {
	Computer         *Computer `json:"computer,omitempty"`
	FocusedNodeID    *string   `json:"focusedNodeId"`
	AmbientIntensity float64   `json:"ambientIntensity"`
}

// NewRoomState returns the empty state a cold room starts with.
func NewRoomState() *RoomState {
	return &RoomState{}
}

// Clone deep-copies the room state.
func (r *RoomState) Clone() *RoomState {
	if r == nil {
		return nil
	}
	clone := &RoomState{
		Computer:         r.Computer.Clone(),
		AmbientIntensity: r.AmbientIntensity,
	}
	if r.FocusedNodeID != nil {
		id := *r.FocusedNodeID
		clone.FocusedNodeID = &id
	}
	return clone
}

// SetComputer replaces the puzzle network wholesale.
func (r *RoomState) SetComputer(c *Computer) {
	r.Computer = c
}

// SetNodeState updates the posture of one access point. It reports whether a
// matching node was found; an unknown id leaves the state untouched.
func (r *RoomState) SetNodeState(nodeID string, s NodeState) bool {
	node := r.Computer.AccessPoint(nodeID)
	if node == nil {
		return false
	}
	node.State = s
	return true
}

// SetFocus moves the focused-node pointer. A nil id clears focus.
func (r *RoomState) SetFocus(nodeID *string) {
	r.FocusedNodeID = nodeID
}

// SetIntensity updates the ambient intensity; callers validate the range.
func (r *RoomState) SetIntensity(value float64) {
	r.AmbientIntensity = value
}

package room

import "sync/atomic"

// Stats aggregates counters across all rooms for the metrics endpoint.
type Stats struct {
	rooms        atomic.Int64
	connections  atomic.Int64
	broadcasts   atomic.Int64
	droppedSends atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Rooms        int64
	Connections  int64
	Broadcasts   int64
	DroppedSends int64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		Rooms:        s.rooms.Load(),
		Connections:  s.connections.Load(),
		Broadcasts:   s.broadcasts.Load(),
		DroppedSends: s.droppedSends.Load(),
	}
}

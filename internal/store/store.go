// Package store persists one durable record per room: the serialized
// RoomState keyed by room id. Records outlive room eviction and are only
// replaced by later saves.
package store

import (
	"context"
	"errors"

	"gridlink/relay/internal/state"
)

// ErrNotFound signals that no record exists for the requested room.
var ErrNotFound = errors.New("room record not found")

// Store is the durable backing for room state.
type Store interface {
	// Load returns the last persisted state for the room, or ErrNotFound.
	Load(ctx context.Context, roomID string) (*state.RoomState, error)
	// Save replaces the room's record with the given state.
	Save(ctx context.Context, roomID string, st *state.RoomState) error
	// Close releases any underlying resources.
	Close() error
}

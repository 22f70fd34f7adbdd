package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gridlink/relay/internal/state"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	focus := "fw"
	saved := &state.RoomState{
		Computer: &state.Computer{
			ID:    "host-1",
			Name:  "Mainframe",
			Level: 2,
			AccessPoints: []state.AccessPoint{
				{ID: "fw", Name: "Firewall", Category: state.CategoryRemote, State: state.NodeActive},
			},
		},
		FocusedNodeID:    &focus,
		AmbientIntensity: 0.7,
	}
	if err := s.Save(context.Background(), "table-9", saved); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load(context.Background(), "table-9")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Computer == nil || loaded.Computer.ID != "host-1" {
		t.Fatalf("computer did not survive the round trip: %+v", loaded.Computer)
	}
	if loaded.FocusedNodeID == nil || *loaded.FocusedNodeID != "fw" {
		t.Fatalf("focus did not survive the round trip: %v", loaded.FocusedNodeID)
	}
	if loaded.AmbientIntensity != 0.7 {
		t.Fatalf("intensity did not survive the round trip: %v", loaded.AmbientIntensity)
	}
}

func TestFileStoreMissingRoom(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.Load(context.Background(), "never-seen"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	first := state.NewRoomState()
	first.SetIntensity(0.2)
	second := state.NewRoomState()
	second.SetIntensity(0.9)
	if err := s.Save(context.Background(), "table-9", first); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := s.Save(context.Background(), "table-9", second); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	loaded, err := s.Load(context.Background(), "table-9")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AmbientIntensity != 0.9 {
		t.Fatalf("latest record should win, got intensity %v", loaded.AmbientIntensity)
	}
}

func TestFileStoreSanitizesRoomID(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Save(context.Background(), "../escape/../room", state.NewRoomState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Dir(filepath.Join(dir, entry.Name())) != dir {
			t.Fatalf("record escaped the data directory: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one record, found %d", len(entries))
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, "table-9", state.NewRoomState()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if _, err := s.Load(ctx, "table-9"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

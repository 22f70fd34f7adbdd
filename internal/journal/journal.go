// Package journal records the accepted messages of a room session to disk so
// a session can be audited or replayed after the fact. It is optional; rooms
// run without one when no journal directory is configured.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"gridlink/relay/internal/state"
)

var journalNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Journal streams one room session's accepted messages to a bundle directory:
// a snappy-compressed JSONL event log, a zstd-compressed final state archive
// written at close, and a manifest describing both.
type Journal struct {
	mu          sync.Mutex
	dir         string
	roomID      string
	openedAt    time.Time
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	events      int
	closed      bool
}

// Manifest describes the bundle layout so tooling can locate the artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	RoomID     string `json:"room_id"`
	OpenedAt   string `json:"opened_at"`
	ClosedAt   string `json:"closed_at"`
	Events     int    `json:"events"`
	EventsPath string `json:"events_path"`
	StatePath  string `json:"state_path"`
}

type record struct {
	At      string          `json:"at"`
	Role    string          `json:"role"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Open prepares a bundle directory for one room session.
func Open(root, roomID string, clock func() time.Time) (*Journal, error) {
	if root == "" {
		return nil, fmt.Errorf("journal root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := journalNameCleaner.ReplaceAllString(roomID, "")
	if cleaned == "" {
		cleaned = "room"
	}
	opened := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, opened.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	eventFile, err := os.Create(filepath.Join(dir, "events.jsonl.sz"))
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:         dir,
		roomID:      roomID,
		openedAt:    opened,
		now:         clock,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
	}, nil
}

// Directory exposes the bundle directory backing this journal.
func (j *Journal) Directory() string {
	if j == nil {
		return ""
	}
	return j.dir
}

// Append writes one accepted message to the event log.
func (j *Journal) Append(role, messageType string, payload json.RawMessage) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal already closed")
	}
	line, err := json.Marshal(record{
		At:      j.now().UTC().Format(time.RFC3339Nano),
		Role:    role,
		Type:    messageType,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	if _, err := j.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := j.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	j.events++
	return j.eventStream.Flush()
}

// Close archives the final room state, writes the manifest, and releases the
// event log. The journal is unusable afterwards.
func (j *Journal) Close(final *state.RoomState) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true

	var firstErr error
	if err := j.writeStateArchive(final); err != nil {
		firstErr = err
	}
	if err := j.writeManifest(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := j.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := j.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (j *Journal) writeStateArchive(final *state.RoomState) error {
	if final == nil {
		final = state.NewRoomState()
	}
	data, err := json.Marshal(final)
	if err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(j.dir, "state.json.zst"))
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		file.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (j *Journal) writeManifest() error {
	manifest := Manifest{
		Version:    1,
		RoomID:     j.roomID,
		OpenedAt:   j.openedAt.Format(time.RFC3339Nano),
		ClosedAt:   j.now().UTC().Format(time.RFC3339Nano),
		Events:     j.events,
		EventsPath: "events.jsonl.sz",
		StatePath:  "state.json.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(j.dir, "manifest.json"), data, 0o644)
}

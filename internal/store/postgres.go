package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gridlink/relay/internal/state"
)

const roomStatesSchema = `
CREATE TABLE IF NOT EXISTS room_states (
    room_id    text PRIMARY KEY,
    state      jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

// PostgresStore keeps room records in a single table keyed by room id.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, roomStatesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure room_states table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Load returns the last persisted state for the room.
func (s *PostgresStore) Load(ctx context.Context, roomID string) (*state.RoomState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM room_states WHERE room_id=$1`,
		roomID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var st state.RoomState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode room record: %w", err)
	}
	return &st, nil
}

// Save upserts the room's record.
func (s *PostgresStore) Save(ctx context.Context, roomID string, st *state.RoomState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode room record: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO room_states (room_id, state, updated_at)
		   VALUES ($1, $2, now())
		   ON CONFLICT (room_id) DO UPDATE SET state=EXCLUDED.state, updated_at=now()`,
		roomID, data)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

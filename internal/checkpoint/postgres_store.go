package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the checkpoints table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    conversation_id  TEXT NOT NULL,
    turn_index       INT NOT NULL,
    thread_id        TEXT NOT NULL DEFAULT '',
    serialized_state JSONB NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (conversation_id, turn_index)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_conversation ON checkpoints(conversation_id, turn_index DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL table, one row per
// (conversation_id, turn_index). A row is never updated in place: Put always
// inserts, so the full checkpoint history stays available for List.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes [Schema] against the database, creating the checkpoints
// table and its index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return nil
}

// Put inserts rec as a new row. A duplicate (conversation_id, turn_index) is
// surfaced as an error rather than silently overwritten — a checkpoint for a
// given turn is written exactly once.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO checkpoints (conversation_id, turn_index, thread_id, serialized_state, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query,
		rec.ConversationID, rec.TurnIndex, rec.ThreadID, []byte(rec.SerializedState), rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("checkpoint: turn %d for conversation %q already checkpointed", rec.TurnIndex, rec.ConversationID)
		}
		return fmt.Errorf("checkpoint: put: %w", err)
	}
	return nil
}

// GetLatest returns the row with the highest turn_index for conversationID.
func (s *PostgresStore) GetLatest(ctx context.Context, conversationID string) (Record, bool, error) {
	const query = `
		SELECT turn_index, thread_id, serialized_state, created_at
		FROM checkpoints
		WHERE conversation_id = $1
		ORDER BY turn_index DESC
		LIMIT 1`

	var rec Record
	var payload []byte
	rec.ConversationID = conversationID

	err := s.db.QueryRow(ctx, query, conversationID).Scan(&rec.TurnIndex, &rec.ThreadID, &payload, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("checkpoint: get latest %q: %w", conversationID, err)
	}
	rec.SerializedState = json.RawMessage(payload)
	return rec, true, nil
}

// List returns every turn index checkpointed for conversationID, ascending.
func (s *PostgresStore) List(ctx context.Context, conversationID string) ([]int, error) {
	const query = `
		SELECT turn_index FROM checkpoints
		WHERE conversation_id = $1
		ORDER BY turn_index ASC`

	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %q: %w", conversationID, err)
	}
	defer rows.Close()

	var indices []int
	for rows.Next() {
		var turnIndex int
		if err := rows.Scan(&turnIndex); err != nil {
			return nil, fmt.Errorf("checkpoint: list scan %q: %w", conversationID, err)
		}
		indices = append(indices, turnIndex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: list %q: %w", conversationID, err)
	}
	return indices, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Package checkpoint implements per-conversation turn-state persistence
// (§4.8): atomic durable writes, latest-checkpoint recovery, and diagnostic
// listing, with writes to the same conversation_id serialized against each
// other (§5.6).
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vanta-core/vanta/internal/state"
)

// ErrPersistence wraps any failure a [Store] reports, distinguishing it from
// a "no checkpoint yet" result (which is not an error).
var ErrPersistence = errors.New("checkpoint: persistence failure")

// timeLayout is the ISO-8601 form §6.4 mandates for every "_time"-suffixed
// timestamp field, including created_at on a persisted checkpoint envelope.
const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Record is the durable shape of one checkpoint (§3.7): conversation_id,
// thread_id, turn_index, serialized_state, created_at.
type Record struct {
	ConversationID  string
	ThreadID        string
	TurnIndex       int
	SerializedState json.RawMessage
	CreatedAt       time.Time
}

// Store is the durability backend a [Checkpointer] writes through. Both the
// local file layout of §6.2 and a PostgreSQL-backed table satisfy it.
type Store interface {
	Put(ctx context.Context, rec Record) error
	GetLatest(ctx context.Context, conversationID string) (Record, bool, error)
	List(ctx context.Context, conversationID string) ([]int, error)
}

// Checkpointer serializes [state.TurnState] to the §6.4 JSON shape (the
// struct's own json tags already match it) and writes it through a [Store],
// holding one lock per conversation_id so concurrent turns on the same
// conversation never race each other's writes (§5.6).
type Checkpointer struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Checkpointer around store.
func New(store Store) *Checkpointer {
	return &Checkpointer{store: store, locks: make(map[string]*sync.Mutex)}
}

// Put serializes ts and writes it as the checkpoint for
// (conversationID, turnIndex), blocking until any other write in flight for
// the same conversationID has finished.
func (c *Checkpointer) Put(ctx context.Context, conversationID, threadID string, turnIndex int, ts state.TurnState) error {
	lock := c.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	payload, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("%w: marshal turn state: %v", ErrPersistence, err)
	}

	rec := Record{
		ConversationID:  conversationID,
		ThreadID:        threadID,
		TurnIndex:       turnIndex,
		SerializedState: payload,
		CreatedAt:       time.Now(),
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// GetLatest returns the most recent checkpointed turn for conversationID.
// The bool is false, with a zero TurnState, when no checkpoint exists yet —
// that is not an error.
func (c *Checkpointer) GetLatest(ctx context.Context, conversationID string) (state.TurnState, int, bool, error) {
	rec, ok, err := c.store.GetLatest(ctx, conversationID)
	if err != nil {
		return state.TurnState{}, 0, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return state.TurnState{}, 0, false, nil
	}

	var ts state.TurnState
	if err := json.Unmarshal(rec.SerializedState, &ts); err != nil {
		return state.TurnState{}, 0, false, fmt.Errorf("%w: unmarshal turn state: %v", ErrPersistence, err)
	}
	return ts, rec.TurnIndex, true, nil
}

// List returns every turn index checkpointed for conversationID, ascending,
// for diagnostics (§4.8).
func (c *Checkpointer) List(ctx context.Context, conversationID string) ([]int, error) {
	indices, err := c.store.List(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return indices, nil
}

func (c *Checkpointer) lockFor(conversationID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[conversationID] = lock
	}
	return lock
}

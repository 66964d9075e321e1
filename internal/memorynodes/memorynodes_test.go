package memorynodes

import (
	"context"
	"errors"
	"testing"

	memmock "github.com/vanta-core/vanta/pkg/memory/mock"
	embmock "github.com/vanta-core/vanta/pkg/provider/embeddings/mock"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/pkg/memory"
	"github.com/vanta-core/vanta/pkg/types"
)

type stubSummariser struct {
	result string
	err    error
	calls  int
	last   []types.Message
}

func (s *stubSummariser) Summarise(_ context.Context, messages []types.Message) (string, error) {
	s.calls++
	s.last = messages
	return s.result, s.err
}

func withMessages(roles ...state.Role) []state.Message {
	out := make([]state.Message, len(roles))
	for i, r := range roles {
		out[i] = state.Message{Type: r, Content: "turn"}
	}
	return out
}

func TestRetrieveMemory(t *testing.T) {
	t.Run("no user message skips with status", func(t *testing.T) {
		ts := state.TurnState{}
		got := RetrieveMemory(context.Background(), ts, "sess-1", Engine{}, Config{})
		if got.RetrieveStatus != "skip: no user message" {
			t.Errorf("RetrieveStatus = %q", got.RetrieveStatus)
		}
	})

	t.Run("merges session and semantic results", func(t *testing.T) {
		sessions := &memmock.SessionStore{
			SearchResult: []types.TranscriptEntry{{Text: "earlier exchange"}},
		}
		semantic := &memmock.SemanticIndex{
			SearchResult: []memory.ChunkResult{
				{Chunk: memory.Chunk{ID: "c1", Content: "relevant chunk"}, Distance: 0.2},
			},
		}
		embedder := &embmock.Provider{EmbedResult: []float32{0.1, 0.2}}

		ts := state.TurnState{Messages: withMessages(state.RoleUser)}
		got := RetrieveMemory(context.Background(), ts, "sess-1", Engine{
			Sessions: sessions,
			Semantic: semantic,
			Embedder: embedder,
		}, Config{MaxRelevantMemories: 3})

		if got.RetrieveStatus != "ok" {
			t.Fatalf("RetrieveStatus = %q", got.RetrieveStatus)
		}
		if len(got.RetrievedContext) != 2 {
			t.Fatalf("expected 2 snippets, got %d", len(got.RetrievedContext))
		}
		if sessions.CallCount("Search") != 1 || semantic.CallCount("Search") != 1 {
			t.Error("expected exactly one search on each layer")
		}
	})

	t.Run("session store error is reported, not propagated", func(t *testing.T) {
		sessions := &memmock.SessionStore{SearchErr: errors.New("boom")}
		ts := state.TurnState{Messages: withMessages(state.RoleUser)}
		got := RetrieveMemory(context.Background(), ts, "sess-1", Engine{Sessions: sessions}, Config{})
		if got.RetrieveStatus == "ok" || got.RetrieveStatus == "" {
			t.Errorf("expected error status, got %q", got.RetrieveStatus)
		}
		if got.RetrievedContext != nil {
			t.Error("expected no snippets written on failure")
		}
	})

	t.Run("nil dependencies skip silently and still succeed", func(t *testing.T) {
		ts := state.TurnState{Messages: withMessages(state.RoleUser)}
		got := RetrieveMemory(context.Background(), ts, "sess-1", Engine{}, Config{})
		if got.RetrieveStatus != "ok" {
			t.Errorf("RetrieveStatus = %q", got.RetrieveStatus)
		}
		if len(got.RetrievedContext) != 0 {
			t.Errorf("expected no snippets, got %d", len(got.RetrievedContext))
		}
	})

	t.Run("folds in hot context when a graph is configured", func(t *testing.T) {
		sessions := &memmock.SessionStore{}
		graph := &memmock.KnowledgeGraph{
			IdentitySnapshotResult: &memory.EntityIdentity{
				Entity: memory.Entity{ID: "sess-1", Type: "contact", Name: "Dana"},
			},
		}
		ts := state.TurnState{Messages: withMessages(state.RoleUser)}
		got := RetrieveMemory(context.Background(), ts, "sess-1", Engine{
			Sessions: sessions,
			Graph:    graph,
		}, Config{})

		if got.RetrieveStatus != "ok" {
			t.Fatalf("RetrieveStatus = %q", got.RetrieveStatus)
		}
		if len(got.RetrievedContext) != 1 {
			t.Fatalf("expected 1 hot-context snippet, got %d", len(got.RetrievedContext))
		}
		if got.RetrievedContext[0].Metadata["source"] != "knowledge_graph" {
			t.Errorf("expected knowledge_graph source metadata, got %v", got.RetrievedContext[0].Metadata)
		}
	})

	t.Run("graph failure degrades retrieval instead of failing it", func(t *testing.T) {
		sessions := &memmock.SessionStore{}
		graph := &memmock.KnowledgeGraph{IdentitySnapshotErr: errors.New("graph unavailable")}
		ts := state.TurnState{Messages: withMessages(state.RoleUser)}
		got := RetrieveMemory(context.Background(), ts, "sess-1", Engine{
			Sessions: sessions,
			Graph:    graph,
		}, Config{})

		if got.RetrieveStatus != "ok" {
			t.Errorf("RetrieveStatus = %q, want ok despite graph failure", got.RetrieveStatus)
		}
		if len(got.RetrievedContext) != 0 {
			t.Errorf("expected no snippets when graph fails, got %d", len(got.RetrievedContext))
		}
	})
}

func TestStoreMemory(t *testing.T) {
	t.Run("skips when the last two messages are not a completed pair", func(t *testing.T) {
		ts := state.TurnState{Messages: withMessages(state.RoleUser)}
		got := StoreMemory(context.Background(), ts, "sess-1", Engine{}, Config{})
		if got.StoreStatus != "skip: no new completed pair" {
			t.Errorf("StoreStatus = %q", got.StoreStatus)
		}
	})

	t.Run("writes pair to session store and semantic index", func(t *testing.T) {
		sessions := &memmock.SessionStore{}
		semantic := &memmock.SemanticIndex{}
		embedder := &embmock.Provider{EmbedResult: []float32{0.3}}

		ts := state.TurnState{Messages: withMessages(state.RoleUser, state.RoleAssistant)}
		got := StoreMemory(context.Background(), ts, "sess-1", Engine{
			Sessions: sessions,
			Semantic: semantic,
			Embedder: embedder,
		}, Config{})

		if got.StoreStatus != "ok" {
			t.Fatalf("StoreStatus = %q", got.StoreStatus)
		}
		if sessions.CallCount("WriteEntry") != 2 {
			t.Errorf("expected 2 WriteEntry calls, got %d", sessions.CallCount("WriteEntry"))
		}
		if semantic.CallCount("IndexChunk") != 1 {
			t.Errorf("expected 1 IndexChunk call, got %d", semantic.CallCount("IndexChunk"))
		}
		if len(got.ConversationHistory) != 2 {
			t.Errorf("expected 2 history entries, got %d", len(got.ConversationHistory))
		}
		if got.LastStoredMessageCount != 2 {
			t.Errorf("LastStoredMessageCount = %d, want 2", got.LastStoredMessageCount)
		}
	})

	t.Run("does not restore an already-stored pair", func(t *testing.T) {
		sessions := &memmock.SessionStore{}
		ts := state.TurnState{
			Messages: withMessages(state.RoleUser, state.RoleAssistant),
			Memory:   state.MemoryState{LastStoredMessageCount: 2},
		}
		got := StoreMemory(context.Background(), ts, "sess-1", Engine{Sessions: sessions}, Config{})
		if got.StoreStatus != "skip: no new completed pair" {
			t.Errorf("StoreStatus = %q", got.StoreStatus)
		}
		if sessions.CallCount("WriteEntry") != 0 {
			t.Error("expected no writes for an already-stored pair")
		}
	})

	t.Run("write failure is reported and history is left untouched", func(t *testing.T) {
		sessions := &memmock.SessionStore{WriteEntryErr: errors.New("disk full")}
		ts := state.TurnState{Messages: withMessages(state.RoleUser, state.RoleAssistant)}
		got := StoreMemory(context.Background(), ts, "sess-1", Engine{Sessions: sessions}, Config{})
		if got.StoreStatus == "ok" {
			t.Error("expected a failure status")
		}
		if len(got.ConversationHistory) != 0 {
			t.Error("expected no history appended on failure")
		}
	})
}

func TestSummarizeMemory(t *testing.T) {
	t.Run("skips with fewer than two history entries", func(t *testing.T) {
		ts := state.TurnState{Memory: state.MemoryState{ConversationHistory: withMessages(state.RoleUser)}}
		got := SummarizeMemory(context.Background(), ts, Engine{Summariser: &stubSummariser{}})
		if got.SummarizeStatus != "skip: nothing to summarize" {
			t.Errorf("SummarizeStatus = %q", got.SummarizeStatus)
		}
	})

	t.Run("collapses the oldest half into one summary message", func(t *testing.T) {
		s := &stubSummariser{result: "condensed history"}
		history := withMessages(state.RoleUser, state.RoleAssistant, state.RoleUser, state.RoleAssistant)
		ts := state.TurnState{Memory: state.MemoryState{ConversationHistory: history}}

		got := SummarizeMemory(context.Background(), ts, Engine{Summariser: s})

		if got.SummarizeStatus != "ok" {
			t.Fatalf("SummarizeStatus = %q", got.SummarizeStatus)
		}
		if s.calls != 1 {
			t.Fatalf("expected 1 summarise call, got %d", s.calls)
		}
		if len(got.ConversationHistory) != 3 {
			t.Fatalf("expected 1 summary + 2 remaining, got %d", len(got.ConversationHistory))
		}
		if got.ConversationHistory[0].Type != state.RoleSystem {
			t.Errorf("expected summary message first, got role %q", got.ConversationHistory[0].Type)
		}
		if got.LastSummary != "condensed history" {
			t.Errorf("LastSummary = %q", got.LastSummary)
		}
	})

	t.Run("summariser error is reported without mutating history", func(t *testing.T) {
		s := &stubSummariser{err: errors.New("model unavailable")}
		history := withMessages(state.RoleUser, state.RoleAssistant)
		ts := state.TurnState{Memory: state.MemoryState{ConversationHistory: history}}

		got := SummarizeMemory(context.Background(), ts, Engine{Summariser: s})
		if got.SummarizeStatus == "ok" {
			t.Error("expected a failure status")
		}
		if len(got.ConversationHistory) != 2 {
			t.Error("expected history unchanged on failure")
		}
	})
}

func TestPruneMemory(t *testing.T) {
	t.Run("leaves history untouched under the cap", func(t *testing.T) {
		history := withMessages(state.RoleUser, state.RoleAssistant)
		ts := state.TurnState{Memory: state.MemoryState{ConversationHistory: history}}
		got := PruneMemory(ts, Config{MaxConversationHistory: 10})
		if len(got.ConversationHistory) != 2 {
			t.Errorf("expected untouched history, got %d entries", len(got.ConversationHistory))
		}
	})

	t.Run("trims to the most recent entries", func(t *testing.T) {
		history := withMessages(state.RoleUser, state.RoleAssistant, state.RoleUser, state.RoleAssistant)
		ts := state.TurnState{Memory: state.MemoryState{ConversationHistory: history}}
		got := PruneMemory(ts, Config{MaxConversationHistory: 2})
		if len(got.ConversationHistory) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(got.ConversationHistory))
		}
		if got.ConversationHistory[0].Type != state.RoleUser || got.ConversationHistory[1].Type != state.RoleAssistant {
			t.Error("expected the last (user, assistant) pair retained")
		}
	})

	t.Run("zero cap disables pruning", func(t *testing.T) {
		history := withMessages(state.RoleUser, state.RoleAssistant)
		ts := state.TurnState{Memory: state.MemoryState{ConversationHistory: history}}
		got := PruneMemory(ts, Config{})
		if len(got.ConversationHistory) != 2 {
			t.Error("expected no pruning when MaxConversationHistory is 0")
		}
	})
}

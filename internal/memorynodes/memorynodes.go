// Package memorynodes implements the three memory-layer graph nodes (§4.7):
// retrieve_memory, store_memory, and summarize_memory, plus the pure
// prune_memory trim step. Every I/O-backed node fails soft — an error from
// the underlying store is recorded as a status string on the returned
// [state.MemoryState] rather than propagated, so a memory outage degrades
// the conversation instead of ending it.
package memorynodes

import (
	"context"
	"fmt"
	"time"

	"github.com/vanta-core/vanta/internal/hotctx"
	"github.com/vanta-core/vanta/internal/session"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/pkg/memory"
	"github.com/vanta-core/vanta/pkg/provider/embeddings"
	"github.com/vanta-core/vanta/pkg/types"
)

// Config mirrors internal/config.MemoryConfig, the subset these nodes need.
type Config struct {
	MaxRelevantMemories    int
	SummarizationThreshold int
	MaxConversationHistory int
}

// Engine bundles the memory-layer interfaces and the embedding provider that
// the memory nodes read and write through. Any field may be nil; a nil
// dependency causes the node that needs it to skip with a status rather than
// panic.
type Engine struct {
	Sessions   memory.SessionStore
	Semantic   memory.SemanticIndex
	Summariser session.Summariser
	Embedder   embeddings.Provider

	// Graph is optional. When set, RetrieveMemory additionally assembles the
	// conversation partner's hot context (identity, current topic, open
	// follow-ups) from the knowledge graph and folds it into
	// RetrievedContext as an extra snippet, using sessionID as the entity ID.
	Graph memory.KnowledgeGraph
}

const defaultMaxRelevant = 5

// RetrieveMemory implements the retrieve_memory node (§4.7): it queries the
// session store and semantic index for context relevant to the last user
// message and writes the merged result to memory.retrieved_context. On any
// failure it leaves RetrievedContext untouched and reports the failure via
// RetrieveStatus.
func RetrieveMemory(ctx context.Context, ts state.TurnState, sessionID string, eng Engine, cfg Config) state.MemoryState {
	mem := ts.Memory

	query := lastUserMessage(ts.Messages)
	if query == "" {
		mem.RetrieveStatus = "skip: no user message"
		return mem
	}

	topK := cfg.MaxRelevantMemories
	if topK <= 0 {
		topK = defaultMaxRelevant
	}

	var snippets []state.RetrievedSnippet

	if eng.Sessions != nil {
		entries, err := eng.Sessions.Search(ctx, query, memory.SearchOpts{SessionID: sessionID, Limit: topK})
		if err != nil {
			mem.RetrieveStatus = fmt.Sprintf("error: session search: %v", err)
			return mem
		}
		for _, e := range entries {
			snippets = append(snippets, state.RetrievedSnippet{
				ID:      fmt.Sprintf("%s/%d", sessionID, e.Timestamp.UnixNano()),
				Content: e.Text,
				Score:   1, // exact keyword match; session store does not rank
			})
		}
	}

	if eng.Semantic != nil && eng.Embedder != nil {
		vec, err := eng.Embedder.Embed(ctx, query)
		if err != nil {
			mem.RetrieveStatus = fmt.Sprintf("error: embed query: %v", err)
			return mem
		}
		results, err := eng.Semantic.Search(ctx, vec, topK, memory.ChunkFilter{SessionID: sessionID})
		if err != nil {
			mem.RetrieveStatus = fmt.Sprintf("error: semantic search: %v", err)
			return mem
		}
		for _, r := range results {
			snippets = append(snippets, state.RetrievedSnippet{
				ID:      r.Chunk.ID,
				Content: r.Chunk.Content,
				Score:   1 - r.Distance,
			})
		}
	}

	if eng.Graph != nil && eng.Sessions != nil {
		if snippet, ok := assembleHotContextSnippet(ctx, eng, sessionID); ok {
			snippets = append(snippets, snippet)
		}
	}

	mem.RetrievedContext = snippets
	mem.RetrieveStatus = "ok"
	return mem
}

// assembleHotContextSnippet folds the conversation partner's hot context
// (identity, current topic, open follow-ups) into a single snippet so a
// knowledge-graph outage degrades retrieval instead of failing it — errors
// are swallowed rather than surfaced through RetrieveStatus.
func assembleHotContextSnippet(ctx context.Context, eng Engine, sessionID string) (state.RetrievedSnippet, bool) {
	asm := hotctx.NewAssembler(eng.Sessions, eng.Graph)
	hc, err := asm.Assemble(ctx, sessionID, sessionID)
	if err != nil {
		return state.RetrievedSnippet{}, false
	}
	content := hotctx.FormatSystemPrompt(hc, "")
	if content == "" {
		return state.RetrievedSnippet{}, false
	}
	return state.RetrievedSnippet{
		ID:       sessionID + "/hotctx",
		Content:  content,
		Score:    1,
		Metadata: map[string]any{"source": "knowledge_graph"},
	}, true
}

// StoreMemory implements the store_memory node (§4.7): it requires a
// completed (user, assistant) pair that has not yet been stored, writes both
// messages to the session store plus an embedded chunk to the semantic
// index, and appends the pair to the rolling conversation history.
func StoreMemory(ctx context.Context, ts state.TurnState, sessionID string, eng Engine, cfg Config) state.MemoryState {
	mem := ts.Memory

	pair, ok := newestPair(ts.Messages)
	if !ok || len(ts.Messages) <= mem.LastStoredMessageCount {
		mem.StoreStatus = "skip: no new completed pair"
		return mem
	}

	now := time.Now()
	if eng.Sessions != nil {
		for _, m := range pair {
			entry := memory.TranscriptEntry{
				Text:      m.Content,
				Timestamp: now,
			}
			if m.Type == state.RoleAssistant {
				entry.IsAssistant = true
			}
			if err := eng.Sessions.WriteEntry(ctx, sessionID, entry); err != nil {
				mem.StoreStatus = fmt.Sprintf("error: write session entry: %v", err)
				return mem
			}
		}
	}

	if eng.Semantic != nil && eng.Embedder != nil {
		assistantText := pair[len(pair)-1].Content
		vec, err := eng.Embedder.Embed(ctx, assistantText)
		if err != nil {
			mem.StoreStatus = fmt.Sprintf("error: embed pair: %v", err)
			return mem
		}
		chunk := memory.Chunk{
			ID:        fmt.Sprintf("%s-%d", sessionID, now.UnixNano()),
			SessionID: sessionID,
			Content:   assistantText,
			Embedding: vec,
			Timestamp: now,
		}
		if err := eng.Semantic.IndexChunk(ctx, chunk); err != nil {
			mem.StoreStatus = fmt.Sprintf("error: index chunk: %v", err)
			return mem
		}
	}

	mem.ConversationHistory = append(mem.ConversationHistory, pair...)
	mem.LastStoredMessageCount = len(ts.Messages)
	mem.StoreStatus = "ok"
	return mem
}

// SummarizeMemory implements the summarize_memory node (§4.7). It is only
// meaningful to call once the should_summarize_conversation conditional
// edge (§5.2) has fired; it replaces the oldest half of the rolling history
// with a single summary system message produced by eng.Summariser.
func SummarizeMemory(ctx context.Context, ts state.TurnState, eng Engine) state.MemoryState {
	mem := ts.Memory

	if eng.Summariser == nil || len(mem.ConversationHistory) < 2 {
		mem.SummarizeStatus = "skip: nothing to summarize"
		return mem
	}

	half := len(mem.ConversationHistory) / 2
	if half == 0 {
		half = 1
	}
	toSummarize := toTypesMessages(mem.ConversationHistory[:half])

	summary, err := eng.Summariser.Summarise(ctx, toSummarize)
	if err != nil {
		mem.SummarizeStatus = fmt.Sprintf("error: summarise: %v", err)
		return mem
	}

	rest := make([]state.Message, len(mem.ConversationHistory)-half)
	copy(rest, mem.ConversationHistory[half:])

	mem.ConversationHistory = append([]state.Message{{
		Type:    state.RoleSystem,
		Content: summary,
		Time:    time.Now(),
	}}, rest...)
	mem.LastSummary = summary
	mem.SummarizeStatus = "ok"
	return mem
}

// PruneMemory implements the prune_memory node (§4.7): a pure trim of the
// rolling conversation history to cfg.MaxConversationHistory entries,
// keeping the most recent ones. It performs no I/O and cannot fail.
func PruneMemory(ts state.TurnState, cfg Config) state.MemoryState {
	mem := ts.Memory
	if cfg.MaxConversationHistory <= 0 || len(mem.ConversationHistory) <= cfg.MaxConversationHistory {
		return mem
	}
	start := len(mem.ConversationHistory) - cfg.MaxConversationHistory
	trimmed := make([]state.Message, cfg.MaxConversationHistory)
	copy(trimmed, mem.ConversationHistory[start:])
	mem.ConversationHistory = trimmed
	return mem
}

// lastUserMessage returns the content of the most recent user-role message,
// or "" if there is none.
func lastUserMessage(messages []state.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type == state.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// newestPair returns the most recent (user, assistant) message pair in
// order, if the last two messages form one.
func newestPair(messages []state.Message) ([]state.Message, bool) {
	if len(messages) < 2 {
		return nil, false
	}
	a, b := messages[len(messages)-2], messages[len(messages)-1]
	if a.Type == state.RoleUser && b.Type == state.RoleAssistant {
		return []state.Message{a, b}, true
	}
	return nil, false
}

func toTypesMessages(msgs []state.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = types.Message{Role: string(m.Type), Content: m.Content}
	}
	return out
}

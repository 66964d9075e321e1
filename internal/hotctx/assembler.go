// Package hotctx assembles the always-injected "hot" context for every
// assistant LLM call in the Vanta voice pipeline.
//
// The hot layer consists of three components that are fetched concurrently:
//
//  1. Entity identity snapshot from the knowledge graph (L3) — what the
//     assistant currently knows about the active conversation partner.
//  2. Recent session transcript from the session store (L1).
//  3. Conversation context: the topic currently in focus and any open
//     follow-ups tied to it.
//
// Target assembly latency is < 50 ms. Use [FormatSystemPrompt] to convert a
// [HotContext] into a system prompt string ready for LLM injection.
package hotctx

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanta-core/vanta/pkg/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Public types
// ─────────────────────────────────────────────────────────────────────────────

// HotContext is the assembled context injected into every assistant LLM prompt.
// All fields are optional — callers should check for nil/empty before using.
type HotContext struct {
	// Identity is the conversation partner's knowledge-graph identity snapshot.
	Identity *memory.EntityIdentity

	// RecentTranscript is the last N minutes of session conversation, capped at
	// the assembler's maxEntries setting.
	RecentTranscript []memory.TranscriptEntry

	// ConversationContext contains the topic currently in focus and related
	// entities.
	ConversationContext *ConversationContext

	// PreFetchResults holds speculatively pre-fetched cold-layer results.
	// [Assembler.Assemble] does not populate it, and no code in this module
	// sets it.
	PreFetchResults []memory.ContextResult

	// AssemblyDuration records how long [Assembler.Assemble] took.
	AssemblyDuration time.Duration
}

// ConversationContext describes the current topic from the entity's perspective.
type ConversationContext struct {
	// Topic is the entity node for the currently focused-on topic, or nil if
	// no FOCUSED_ON relationship exists.
	Topic *memory.Entity

	// RelatedEntities lists other entities tied to the same topic.
	RelatedEntities []memory.Entity

	// OpenFollowUps lists follow-up-task entities the conversation partner is
	// tracking, via TRACKING or MENTIONED_IN relationships.
	OpenFollowUps []memory.Entity
}

// ─────────────────────────────────────────────────────────────────────────────
// Assembler
// ─────────────────────────────────────────────────────────────────────────────

// Assembler concurrently fetches all three hot-layer components and combines
// them into a [HotContext].
type Assembler struct {
	sessionStore   memory.SessionStore
	graph          memory.KnowledgeGraph
	recentDuration time.Duration
	maxEntries     int
}

// Option is a functional option for [NewAssembler].
type Option func(*Assembler)

// WithRecentDuration sets how far back in time [Assembler.Assemble] looks when
// fetching the recent session transcript. Defaults to 5 minutes.
func WithRecentDuration(d time.Duration) Option {
	return func(a *Assembler) { a.recentDuration = d }
}

// WithMaxTranscriptEntries caps the number of transcript entries included in
// [HotContext.RecentTranscript]. When the session store returns more than n
// entries the most-recent n are kept. Defaults to 50.
func WithMaxTranscriptEntries(n int) Option {
	return func(a *Assembler) { a.maxEntries = n }
}

// NewAssembler creates an [Assembler] with sensible defaults.
// Apply [Option] values to override the defaults.
func NewAssembler(sessionStore memory.SessionStore, graph memory.KnowledgeGraph, opts ...Option) *Assembler {
	a := &Assembler{
		sessionStore:   sessionStore,
		graph:          graph,
		recentDuration: 5 * time.Minute,
		maxEntries:     50,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble concurrently fetches all three hot-layer components and returns a
// fully populated [HotContext].
//
// The three fetches (identity snapshot, recent transcript, conversation
// context) run in parallel via errgroup. If any fetch returns an error,
// assembly is aborted and that error is returned — wrapped with a
// "hot context: " prefix.
//
// Assemble respects context cancellation on all underlying I/O calls.
func (a *Assembler) Assemble(ctx context.Context, entityID string, sessionID string) (*HotContext, error) {
	start := time.Now()

	var (
		identity   *memory.EntityIdentity
		transcript []memory.TranscriptEntry
		convCtx    *ConversationContext
	)

	eg, egCtx := errgroup.WithContext(ctx)

	// ── goroutine 1: entity identity snapshot ────────────────────────────────
	eg.Go(func() error {
		snap, err := a.graph.IdentitySnapshot(egCtx, entityID)
		if err != nil {
			return fmt.Errorf("hot context: identity snapshot for %q: %w", entityID, err)
		}
		identity = snap
		return nil
	})

	// ── goroutine 2: recent session transcript ────────────────────────────────
	eg.Go(func() error {
		entries, err := a.sessionStore.GetRecent(egCtx, sessionID, a.recentDuration)
		if err != nil {
			return fmt.Errorf("hot context: get recent transcript for session %q: %w", sessionID, err)
		}
		// Truncate to the most-recent maxEntries entries.
		if len(entries) > a.maxEntries {
			entries = entries[len(entries)-a.maxEntries:]
		}
		transcript = entries
		return nil
	})

	// ── goroutine 3: conversation context ─────────────────────────────────────
	eg.Go(func() error {
		cc, err := a.buildConversationContext(egCtx, entityID)
		if err != nil {
			return fmt.Errorf("hot context: build conversation context for %q: %w", entityID, err)
		}
		convCtx = cc
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &HotContext{
		Identity:            identity,
		RecentTranscript:    transcript,
		ConversationContext: convCtx,
		AssemblyDuration:    time.Since(start),
	}, nil
}

// buildConversationContext builds conversation context for entityID by:
//  1. Looking up FOCUSED_ON outgoing relationships to find the current topic.
//  2. If a topic is found, fetching its entity and its 1-hop neighbours (other
//     entities tied to the same topic).
//  3. Looking up TRACKING and MENTIONED_IN relationships to collect open
//     follow-ups.
func (a *Assembler) buildConversationContext(ctx context.Context, entityID string) (*ConversationContext, error) {
	// Fetch all outgoing relationships from the entity in one call.
	rels, err := a.graph.GetRelationships(ctx, entityID, memory.WithOutgoing())
	if err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}

	cc := &ConversationContext{
		RelatedEntities: []memory.Entity{},
		OpenFollowUps:   []memory.Entity{},
	}

	var topicID string
	for _, r := range rels {
		switch r.RelType {
		case "FOCUSED_ON":
			topicID = r.TargetID

		case "TRACKING", "MENTIONED_IN":
			// Only include if the target entity is of type "follow_up".
			entity, err := a.graph.GetEntity(ctx, r.TargetID)
			if err != nil {
				return nil, fmt.Errorf("get follow-up entity %q: %w", r.TargetID, err)
			}
			if entity != nil && entity.Type == "follow_up" {
				cc.OpenFollowUps = append(cc.OpenFollowUps, *entity)
			}
		}
	}

	if topicID != "" {
		topic, err := a.graph.GetEntity(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("get topic entity %q: %w", topicID, err)
		}
		cc.Topic = topic

		// Find other entities tied to the same topic (1-hop neighbours of the
		// topic node that have a FOCUSED_ON edge pointing to it).
		neighbours, err := a.graph.Neighbors(ctx, topicID, 1,
			memory.TraverseRelTypes("FOCUSED_ON"),
		)
		if err != nil {
			return nil, fmt.Errorf("get neighbours of topic %q: %w", topicID, err)
		}
		for _, n := range neighbours {
			// Exclude the entity itself.
			if n.ID != entityID {
				cc.RelatedEntities = append(cc.RelatedEntities, n)
			}
		}
	}

	return cc, nil
}

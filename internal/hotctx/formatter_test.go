package hotctx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/vanta-core/vanta/internal/hotctx"
	"github.com/vanta-core/vanta/pkg/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func fullHotContext() *hotctx.HotContext {
	topicEntity := memory.Entity{
		ID:   "topic-1",
		Type: "topic",
		Name: "the missing package",
		Attributes: map[string]any{
			"description": "a delivery Alice is waiting on",
		},
	}
	relatedEntity := memory.Entity{
		ID:   "entity-2",
		Type: "contact",
		Name: "Bob",
	}
	followUpEntity := memory.Entity{
		ID:   "followup-1",
		Type: "follow_up",
		Name: "Call the courier back",
		Attributes: map[string]any{
			"status": "active",
		},
	}

	return &hotctx.HotContext{
		Identity: &memory.EntityIdentity{
			Entity: memory.Entity{
				ID:   "entity-1",
				Type: "contact",
				Name: "Alice",
				Attributes: map[string]any{
					"role":           "primary user",
					"speaking_style": "direct and brief",
				},
			},
			Relationships: []memory.Relationship{
				{
					SourceID: "entity-1",
					TargetID: "entity-2",
					RelType:  "KNOWS",
					Attributes: map[string]any{
						"description": "coworker",
					},
				},
			},
			RelatedEntities: []memory.Entity{relatedEntity},
		},
		ConversationContext: &hotctx.ConversationContext{
			Topic:           &topicEntity,
			RelatedEntities: []memory.Entity{relatedEntity},
			OpenFollowUps:   []memory.Entity{followUpEntity},
		},
		RecentTranscript: []memory.TranscriptEntry{
			{
				SpeakerID:   "user1",
				SpeakerName: "Alice",
				Text:        "Have you heard anything about the missing package?",
				Timestamp:   time.Now().Add(-2 * time.Minute),
			},
			{
				SpeakerID:   "entity-1",
				SpeakerName: "Assistant",
				Text:        "I checked, it's still in transit.",
				Timestamp:   time.Now().Add(-1 * time.Minute),
			},
		},
		AssemblyDuration: 12 * time.Millisecond,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// tests
// ─────────────────────────────────────────────────────────────────────────────

// TestFormatSystemPrompt_Full verifies that a fully-populated HotContext
// renders all sections correctly.
func TestFormatSystemPrompt_Full(t *testing.T) {
	hctx := fullHotContext()
	personality := "You are warm but efficient, and speak in short sentences."

	result := hotctx.FormatSystemPrompt(hctx, personality)

	// Opening line must contain entity name and personality.
	if !strings.Contains(result, "Alice") {
		t.Errorf("output missing entity name 'Alice':\n%s", result)
	}
	if !strings.Contains(result, personality) {
		t.Errorf("output missing personality string:\n%s", result)
	}

	// Identity section
	if !strings.Contains(result, "## Your Identity") {
		t.Error("output missing '## Your Identity' section")
	}
	if !strings.Contains(result, "primary user") {
		t.Errorf("output missing role 'primary user':\n%s", result)
	}

	// Relationships section
	if !strings.Contains(result, "## Your Relationships") {
		t.Error("output missing '## Your Relationships' section")
	}
	if !strings.Contains(result, "Bob") {
		t.Errorf("output missing related entity 'Bob':\n%s", result)
	}
	if !strings.Contains(result, "KNOWS") {
		t.Errorf("output missing relationship type 'KNOWS':\n%s", result)
	}

	// Conversation context section
	if !strings.Contains(result, "## Current Topic") {
		t.Error("output missing '## Current Topic' section")
	}
	if !strings.Contains(result, "the missing package") {
		t.Errorf("output missing topic 'the missing package':\n%s", result)
	}
	if !strings.Contains(result, "waiting on") {
		t.Errorf("output missing topic description:\n%s", result)
	}
	if !strings.Contains(result, "Related") {
		t.Errorf("output missing 'Related' line:\n%s", result)
	}
	if !strings.Contains(result, "Open follow-ups") {
		t.Errorf("output missing 'Open follow-ups' line:\n%s", result)
	}
	if !strings.Contains(result, "Call the courier back") {
		t.Errorf("output missing follow-up name:\n%s", result)
	}
	if !strings.Contains(result, "[active]") {
		t.Errorf("output missing follow-up status [active]:\n%s", result)
	}

	// Recent conversation section
	if !strings.Contains(result, "## Recent Conversation") {
		t.Error("output missing '## Recent Conversation' section")
	}
	if !strings.Contains(result, "Alice") {
		t.Errorf("output missing speaker 'Alice':\n%s", result)
	}
	if !strings.Contains(result, "missing package") {
		t.Errorf("output missing transcript text:\n%s", result)
	}
}

// TestFormatSystemPrompt_Minimal verifies that a nil identity, empty context,
// and no transcript produce only the opening line — no empty section headers.
func TestFormatSystemPrompt_Minimal(t *testing.T) {
	hctx := &hotctx.HotContext{
		// No Identity, no ConversationContext, no RecentTranscript
	}
	personality := "a calm and helpful voice"

	result := hotctx.FormatSystemPrompt(hctx, personality)

	// Opening line only — must contain fallback name and personality.
	if !strings.Contains(result, "a voice assistant") {
		t.Errorf("output missing fallback name 'a voice assistant':\n%s", result)
	}
	if !strings.Contains(result, personality) {
		t.Errorf("output missing personality:\n%s", result)
	}

	// No section headers should be emitted.
	for _, header := range []string{
		"## Your Identity",
		"## Your Relationships",
		"## Current Topic",
		"## Recent Conversation",
	} {
		if strings.Contains(result, header) {
			t.Errorf("output should not contain empty header %q:\n%s", header, result)
		}
	}
}

// TestFormatSystemPrompt_NilHotContext verifies graceful handling of nil input.
func TestFormatSystemPrompt_NilHotContext(t *testing.T) {
	result := hotctx.FormatSystemPrompt(nil, "brave and patient")
	if result == "" {
		t.Error("FormatSystemPrompt(nil, ...) returned empty string")
	}
	if !strings.Contains(result, "brave and patient") {
		t.Errorf("output missing personality: %q", result)
	}
}

// TestFormatSystemPrompt_NoPersonality verifies that an empty personality
// string is handled without leaving trailing spaces or double periods.
func TestFormatSystemPrompt_NoPersonality(t *testing.T) {
	hctx := fullHotContext()
	result := hotctx.FormatSystemPrompt(hctx, "")

	// Should end with a period after the entity name, no trailing space.
	firstLine := strings.SplitN(result, "\n", 2)[0]
	if !strings.HasSuffix(firstLine, ".") {
		t.Errorf("first line should end with '.': %q", firstLine)
	}
	if strings.Contains(firstLine, "  ") {
		t.Errorf("first line has double spaces: %q", firstLine)
	}
}

// TestFormatSystemPrompt_EmptyRelationships verifies that the Relationships
// section is omitted when there are no relationships.
func TestFormatSystemPrompt_EmptyRelationships(t *testing.T) {
	hctx := &hotctx.HotContext{
		Identity: &memory.EntityIdentity{
			Entity: memory.Entity{ID: "entity-1", Name: "Alice", Type: "contact"},
			// Empty relationship slice
			Relationships:   []memory.Relationship{},
			RelatedEntities: []memory.Entity{},
		},
	}
	result := hotctx.FormatSystemPrompt(hctx, "")
	if strings.Contains(result, "## Your Relationships") {
		t.Errorf("empty relationships should be omitted:\n%s", result)
	}
}

// TestFormatSystemPrompt_EmptyConversationContext verifies that the topic
// section is omitted when ConversationContext has no topic, no related
// entities, and no follow-ups.
func TestFormatSystemPrompt_EmptyConversationContext(t *testing.T) {
	hctx := &hotctx.HotContext{
		Identity: &memory.EntityIdentity{
			Entity: memory.Entity{ID: "entity-1", Name: "Alice", Type: "contact"},
		},
		ConversationContext: &hotctx.ConversationContext{
			// nil Topic, empty slices
			RelatedEntities: []memory.Entity{},
			OpenFollowUps:   []memory.Entity{},
		},
	}
	result := hotctx.FormatSystemPrompt(hctx, "")
	if strings.Contains(result, "## Current Topic") {
		t.Errorf("empty conversation context should be omitted:\n%s", result)
	}
}

// TestFormatSystemPrompt_IsPure verifies that calling FormatSystemPrompt twice
// with the same input produces identical output (pure function).
func TestFormatSystemPrompt_IsPure(t *testing.T) {
	hctx := fullHotContext()
	// FormatSystemPrompt uses relative timestamps — calling it twice
	// in rapid succession should give the same structure (same sections present).
	out1 := hotctx.FormatSystemPrompt(hctx, "warm and efficient")
	out2 := hotctx.FormatSystemPrompt(hctx, "warm and efficient")

	// Both must contain the same sections.
	sections := []string{
		"## Your Identity",
		"## Your Relationships",
		"## Current Topic",
		"## Recent Conversation",
	}
	for _, s := range sections {
		if strings.Contains(out1, s) != strings.Contains(out2, s) {
			t.Errorf("section %q presence differs between calls", s)
		}
	}
}

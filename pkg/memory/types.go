package memory

import "github.com/vanta-core/vanta/pkg/types"

// TranscriptEntry is the L1 session log record. It is an alias of
// [types.TranscriptEntry] so that store implementations and their callers
// share a single definition.
type TranscriptEntry = types.TranscriptEntry

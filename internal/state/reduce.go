package state

// Reducers combine a partial update produced by one node with the
// accumulated TurnState. Each top-level field has its own merge
// semantics (§5.3): Messages is append-only, Audio/Memory/Config/Activation
// are shallow "non-zero field wins" merges (except that the bool fields of
// Config and Activation are always copied from the update, false included),
// and Processing is a deep merge
// since two nodes (local and API tracks) may write to it in the same turn.

// AppendMessages returns a copy of s with msgs appended to Messages. Never
// mutates the slice backing s.Messages.
func AppendMessages(s TurnState, msgs ...Message) TurnState {
	if len(msgs) == 0 {
		return s
	}
	merged := make([]Message, 0, len(s.Messages)+len(msgs))
	merged = append(merged, s.Messages...)
	merged = append(merged, msgs...)
	s.Messages = merged
	return s
}

// MergeAudio shallow-merges update into s.Audio: any non-zero field in
// update overwrites the corresponding field in s.Audio.
func MergeAudio(s TurnState, update AudioState) TurnState {
	cur := s.Audio
	if update.LastFrameHandle != "" {
		cur.LastFrameHandle = update.LastFrameHandle
	}
	if update.LastTranscript != "" {
		cur.LastTranscript = update.LastTranscript
	}
	if update.LastSynthesizedUtt != "" {
		cur.LastSynthesizedUtt = update.LastSynthesizedUtt
	}
	if update.Level != 0 {
		cur.Level = update.Level
	}
	if !update.LastTranscribedTime.IsZero() {
		cur.LastTranscribedTime = update.LastTranscribedTime
	}
	if update.Error != "" {
		cur.Error = update.Error
	}
	s.Audio = cur
	return s
}

// MergeMemory shallow-merges update into s.Memory.
func MergeMemory(s TurnState, update MemoryState) TurnState {
	cur := s.Memory
	if update.RetrievedContext != nil {
		cur.RetrievedContext = update.RetrievedContext
	}
	if update.ConversationHistory != nil {
		cur.ConversationHistory = update.ConversationHistory
	}
	if update.LastSummary != "" {
		cur.LastSummary = update.LastSummary
	}
	if update.LastStoredMessageCount != 0 {
		cur.LastStoredMessageCount = update.LastStoredMessageCount
	}
	if update.RetrieveStatus != "" {
		cur.RetrieveStatus = update.RetrieveStatus
	}
	if update.StoreStatus != "" {
		cur.StoreStatus = update.StoreStatus
	}
	if update.SummarizeStatus != "" {
		cur.SummarizeStatus = update.SummarizeStatus
	}
	s.Memory = cur
	return s
}

// MergeConfig shallow-merges update into s.Config.
func MergeConfig(s TurnState, update ConfigState) TurnState {
	cur := s.Config
	if update.ActivationMode != "" {
		cur.ActivationMode = update.ActivationMode
	}
	cur.TTSEnabled = update.TTSEnabled
	cur.MemoryEnabled = update.MemoryEnabled
	if update.SummarizationThreshold != 0 {
		cur.SummarizationThreshold = update.SummarizationThreshold
	}
	if update.MaxConversationHistory != 0 {
		cur.MaxConversationHistory = update.MaxConversationHistory
	}
	s.Config = cur
	return s
}

// MergeActivation shallow-merges update into s.Activation.
func MergeActivation(s TurnState, update Activation) TurnState {
	cur := s.Activation
	if update.Status != "" {
		cur.Status = update.Status
	}
	if update.Mode != "" {
		cur.Mode = update.Mode
	}
	if !update.LastActivationTime.IsZero() {
		cur.LastActivationTime = update.LastActivationTime
	}
	cur.WakeWordDetected = update.WakeWordDetected
	s.Activation = cur
	return s
}

// MergeProcessing deep-merges update into s.Processing. Local-track fields
// (LocalCompleted/LocalResponse/LocalError) and API-track fields
// (APICompleted/APIResponse/APIError) are independent sub-keys, so this is
// safe to call from both tracks without either clobbering the other's
// progress, as long as callers only populate the sub-keys owned by their
// track plus any shared fields (Path, Decision, FinalResponse, Integration)
// that are set exactly once in a well-formed graph run.
func MergeProcessing(s TurnState, update Processing) TurnState {
	cur := s.Processing

	if update.Path != "" {
		cur.Path = update.Path
	}
	if update.Decision != nil {
		cur.Decision = update.Decision
	}
	if update.LocalCompleted {
		cur.LocalCompleted = true
	}
	if update.APICompleted {
		cur.APICompleted = true
	}
	if update.LocalResponse != nil {
		cur.LocalResponse = update.LocalResponse
	}
	if update.APIResponse != nil {
		cur.APIResponse = update.APIResponse
	}
	if update.LocalError != "" {
		cur.LocalError = update.LocalError
	}
	if update.APIError != "" {
		cur.APIError = update.APIError
	}
	if update.FinalResponse != "" {
		cur.FinalResponse = update.FinalResponse
	}
	if update.Integration != nil {
		cur.Integration = update.Integration
	}
	if !update.StartTime.IsZero() {
		cur.StartTime = update.StartTime
	}
	if update.FatalError != "" {
		cur.FatalError = update.FatalError
	}

	s.Processing = cur
	return s
}

package vad

import "github.com/vanta-core/vanta/pkg/types"

// VADEvent represents a voice activity detection result for a single audio
// frame. It is a type alias of [types.VADEvent] so that engine
// implementations and mocks built against pkg/types satisfy this package's
// interfaces without a conversion step.
type VADEvent = types.VADEvent

// VADEventType enumerates VAD detection states.
type VADEventType = types.VADEventType

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart = types.VADSpeechStart

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue = types.VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd = types.VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence = types.VADSilence
)

// Package mock provides test doubles for the internal/voice contracts.
package mock

import (
	"context"
	"sync"

	"github.com/vanta-core/vanta/internal/voice"
	"github.com/vanta-core/vanta/pkg/audio"
	"github.com/vanta-core/vanta/pkg/types"
)

// Transcriber is a mock implementation of voice.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result voice.TranscribeResult

	// Err, if non-nil, is returned instead of Result.
	Err error

	// Calls records every frame passed to Transcribe.
	Calls []audio.AudioFrame
}

func (t *Transcriber) Transcribe(_ context.Context, frame audio.AudioFrame) (voice.TranscribeResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, frame)
	if t.Err != nil {
		return voice.TranscribeResult{}, t.Err
	}
	return t.Result, nil
}

// Ensure Transcriber implements voice.Transcriber at compile time.
var _ voice.Transcriber = (*Transcriber)(nil)

// SynthesizeCall records a single invocation of Synthesizer.Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

// Synthesizer is a mock implementation of voice.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is returned by every Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned instead of Audio.
	Err error

	// Calls records every invocation.
	Calls []SynthesizeCall
}

func (s *Synthesizer) Synthesize(_ context.Context, text string, v types.VoiceProfile) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SynthesizeCall{Text: text, Voice: v})
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Audio, nil
}

// Ensure Synthesizer implements voice.Synthesizer at compile time.
var _ voice.Synthesizer = (*Synthesizer)(nil)

// SpeechDetector is a mock implementation of voice.SpeechDetector.
type SpeechDetector struct {
	mu sync.Mutex

	// IsSpeechResult is returned by every IsSpeech call.
	IsSpeechResult bool

	// Err, if non-nil, is returned instead of IsSpeechResult.
	Err error

	// Calls records every frame passed to IsSpeech.
	Calls []audio.AudioFrame
}

func (d *SpeechDetector) IsSpeech(_ context.Context, frame audio.AudioFrame) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, frame)
	if d.Err != nil {
		return false, d.Err
	}
	return d.IsSpeechResult, nil
}

// Ensure SpeechDetector implements voice.SpeechDetector at compile time.
var _ voice.SpeechDetector = (*SpeechDetector)(nil)

// WakeWordDetector is a mock implementation of voice.WakeWordDetector.
type WakeWordDetector struct {
	mu sync.Mutex

	// Result is returned by every Detect call.
	Result voice.WakeWordResult

	// Err, if non-nil, is returned instead of Result.
	Err error

	// Calls records every frame passed to Detect.
	Calls []audio.AudioFrame
}

func (w *WakeWordDetector) Detect(_ context.Context, frame audio.AudioFrame) (voice.WakeWordResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Calls = append(w.Calls, frame)
	if w.Err != nil {
		return voice.WakeWordResult{}, w.Err
	}
	return w.Result, nil
}

// Ensure WakeWordDetector implements voice.WakeWordDetector at compile time.
var _ voice.WakeWordDetector = (*WakeWordDetector)(nil)

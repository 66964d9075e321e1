// Package voice defines the synchronous speech contracts the graph's stt and
// tts nodes call (§4.9): one audio frame in, one transcript out; one
// utterance in, one audio buffer out. The concrete provider packages
// (pkg/provider/stt, pkg/provider/tts, pkg/provider/vad) are all
// streaming/session based, so this package's adapters open a session, drive
// it through exactly one exchange, and close it — trading the streaming
// providers' low-latency partials for the single blocking call a graph node
// wants.
package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/vanta-core/vanta/pkg/audio"
	"github.com/vanta-core/vanta/pkg/provider/stt"
	"github.com/vanta-core/vanta/pkg/provider/tts"
	"github.com/vanta-core/vanta/pkg/provider/vad"
	"github.com/vanta-core/vanta/pkg/types"
)

// TranscribeResult is the stt node's output shape (§4.9).
type TranscribeResult struct {
	Text       string
	Confidence float64
	Segments   []types.WordDetail
	Language   string
}

// Transcriber is the synchronous speech-to-text contract.
type Transcriber interface {
	Transcribe(ctx context.Context, frame audio.AudioFrame) (TranscribeResult, error)
}

// Synthesizer is the synchronous text-to-speech contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)
}

// SpeechDetector is the synchronous VAD contract: does this frame contain
// speech. Unlike [Transcriber], it is expected to be called once per
// captured frame, so implementations should be cheap.
type SpeechDetector interface {
	IsSpeech(ctx context.Context, frame audio.AudioFrame) (bool, error)
}

// WakeWordResult is the wake_word node's output shape (§4.9).
type WakeWordResult struct {
	Hit         bool
	Confidence  float64
	TimestampMs int64
}

// WakeWordDetector is the synchronous wake-word contract.
type WakeWordDetector interface {
	Detect(ctx context.Context, frame audio.AudioFrame) (WakeWordResult, error)
}

// ErrNoFinalTranscript is returned when an STT session closes its Finals
// channel without ever producing a final transcript for the submitted audio.
var ErrNoFinalTranscript = errors.New("voice: stt session produced no final transcript")

// StreamingTranscriber adapts a streaming [stt.Provider] into a [Transcriber]
// by opening one session per call, submitting frame as its only audio chunk,
// and blocking for the first final transcript.
type StreamingTranscriber struct {
	Provider stt.Provider
	Language string
	Keywords []types.KeywordBoost
}

func (t *StreamingTranscriber) Transcribe(ctx context.Context, frame audio.AudioFrame) (TranscribeResult, error) {
	sess, err := t.Provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: frame.SampleRate,
		Channels:   frame.Channels,
		Language:   t.Language,
		Keywords:   t.Keywords,
	})
	if err != nil {
		return TranscribeResult{}, fmt.Errorf("voice: start stt stream: %w", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(frame.Data); err != nil {
		return TranscribeResult{}, fmt.Errorf("voice: send audio: %w", err)
	}

	select {
	case final, ok := <-sess.Finals():
		if !ok {
			return TranscribeResult{}, ErrNoFinalTranscript
		}
		return TranscribeResult{
			Text:       final.Text,
			Confidence: final.Confidence,
			Segments:   final.Words,
			Language:   t.Language,
		}, nil
	case <-ctx.Done():
		return TranscribeResult{}, ctx.Err()
	}
}

// StreamingSynthesizer adapts a streaming [tts.Provider] into a [Synthesizer]
// by feeding text as the sole value on the provider's input channel and
// concatenating every audio chunk it emits before returning.
type StreamingSynthesizer struct {
	Provider tts.Provider
}

func (s *StreamingSynthesizer) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := s.Provider.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return nil, fmt.Errorf("voice: start tts stream: %w", err)
	}

	var out []byte
	for {
		select {
		case chunk, ok := <-audioCh:
			if !ok {
				return out, nil
			}
			out = append(out, chunk...)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SessionSpeechDetector adapts a [vad.Engine] into a [SpeechDetector] by
// keeping one long-lived [vad.SessionHandle] open across calls, matching the
// provider's expectation that frames arrive in order from a continuous
// stream rather than in isolation.
type SessionSpeechDetector struct {
	session vad.SessionHandle
}

// NewSessionSpeechDetector opens a VAD session up front so every subsequent
// IsSpeech call is a single ProcessFrame round trip.
func NewSessionSpeechDetector(engine vad.Engine, cfg vad.Config) (*SessionSpeechDetector, error) {
	sess, err := engine.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("voice: open vad session: %w", err)
	}
	return &SessionSpeechDetector{session: sess}, nil
}

func (d *SessionSpeechDetector) IsSpeech(_ context.Context, frame audio.AudioFrame) (bool, error) {
	event, err := d.session.ProcessFrame(frame.Data)
	if err != nil {
		return false, fmt.Errorf("voice: process frame: %w", err)
	}
	return event.Type == vad.VADSpeechStart || event.Type == vad.VADSpeechContinue, nil
}

// Close releases the underlying VAD session.
func (d *SessionSpeechDetector) Close() error {
	return d.session.Close()
}

// ThresholdWakeWordDetector adapts a [SpeechDetector] into a
// [WakeWordDetector]. It is a placeholder for a real keyword-spotting model:
// every frame the detector reports as speech is a hit, and Threshold (0.7
// when unset) is reported as the hit's Confidence. No confidence value is
// compared against Threshold, since [SpeechDetector] reports only a bool;
// internal/activation.ThresholdWakeWordDetector, which drives that package's
// frame-by-frame state machine, is the variant that compares VAD confidence.
type ThresholdWakeWordDetector struct {
	Detector  SpeechDetector
	Threshold float64
}

func (w *ThresholdWakeWordDetector) Detect(ctx context.Context, frame audio.AudioFrame) (WakeWordResult, error) {
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	isSpeech, err := w.Detector.IsSpeech(ctx, frame)
	if err != nil {
		return WakeWordResult{}, err
	}
	if !isSpeech {
		return WakeWordResult{}, nil
	}
	return WakeWordResult{
		Hit:         true,
		Confidence:  threshold,
		TimestampMs: frame.Timestamp.Milliseconds(),
	}, nil
}

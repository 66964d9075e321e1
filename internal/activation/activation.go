// Package activation implements the activation gating state machine named in
// §3.1 and supplemented from the original wake-word/VAD activation manager:
// it decides, frame by frame, whether the system is INACTIVE, LISTENING,
// PROCESSING, or SPEAKING, and whether the current frame's speech should be
// handed to STT. A single [Manager] is shared by every turn of a
// conversation — unlike the rest of [state.TurnState], activation status is
// not reset between turns, it only ever moves through the allowed sequence
// (§3.1) or snaps back to INACTIVE on error or timeout.
package activation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vanta-core/vanta/internal/config"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/pkg/audio"
	"github.com/vanta-core/vanta/pkg/provider/vad"
)

// Config holds the tuning knobs for a [Manager], mirroring
// config.ActivationConfig plus the VAD session parameters the manager needs
// to open a session.
type Config struct {
	Mode             state.ActivationMode
	EnergyThreshold  float64
	Timeout          time.Duration
	SampleRate       int
	FrameSizeMs      int
	SpeechThreshold  float64
	SilenceThreshold float64
}

// FromConfig builds a [Config] from the process-wide activation
// configuration plus caller-supplied VAD session parameters (sample rate,
// frame size, speech and silence thresholds), so callers never
// hand-assemble this struct from raw config fields.
func FromConfig(cfg config.ActivationConfig, sampleRate, frameSizeMs int, speechThreshold, silenceThreshold float64) Config {
	return Config{
		Mode:             ModeFromConfig(cfg.Mode),
		EnergyThreshold:  cfg.EnergyThreshold,
		Timeout:          time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
		SampleRate:       sampleRate,
		FrameSizeMs:      frameSizeMs,
		SpeechThreshold:  speechThreshold,
		SilenceThreshold: silenceThreshold,
	}
}

// ModeFromConfig maps the lowercase config enum onto the uppercase
// [state.ActivationMode] enum state carries, so the rest of the pipeline
// never imports the config package just to compare modes.
func ModeFromConfig(m config.ActivationMode) state.ActivationMode {
	switch m {
	case config.ActivationContinuous:
		return state.ModeContinuous
	case config.ActivationWakeWord:
		return state.ModeWakeWord
	case config.ActivationScheduled:
		return state.ModeScheduled
	case config.ActivationManual:
		return state.ModeManual
	case config.ActivationOff:
		return state.ModeOff
	default:
		return state.ModeWakeWord
	}
}

// WakeWordDetector decides whether a frame already known to contain speech
// also contains the configured wake phrase. Implementations may inspect the
// raw frame, the VAD confidence for it, or both.
type WakeWordDetector interface {
	Detect(frame audio.AudioFrame, vadConfidence float64) (detected bool, confidence float64)
}

// ThresholdWakeWordDetector is a minimal [WakeWordDetector] that treats any
// frame whose VAD confidence clears Threshold as a wake-word hit. It is a
// placeholder for a real phrase-matching detector (e.g. a small keyword
// spotting model or an STT pass over the frame); it never inspects
// frame.Data.
//
// TODO: replace with a keyword-spotting model once one is selected; this
// detector cannot distinguish "hey vanta" from any other loud utterance.
type ThresholdWakeWordDetector struct {
	Threshold float64
}

func (d ThresholdWakeWordDetector) Detect(_ audio.AudioFrame, vadConfidence float64) (bool, float64) {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	return vadConfidence >= threshold, vadConfidence
}

// Result is what [Manager.ProcessFrame] reports for a single frame.
type Result struct {
	Activation    state.Activation
	IsSpeech      bool
	ShouldProcess bool
}

// Manager is the activation state machine. It is safe for concurrent use;
// callers typically drive it from a single audio-capture goroutine, but
// Activate/Deactivate/SetMode may be called from elsewhere (e.g. a manual
// trigger or an admin command).
type Manager struct {
	cfg      Config
	session  vad.SessionHandle
	wakeWord WakeWordDetector

	mu               sync.Mutex
	mode             state.ActivationMode
	status           state.ActivationStatus
	activationTime   time.Time
	deadline         time.Time
	wakeWordDetected bool
}

// New constructs a [Manager]. engine may be nil only for [state.ModeOff] or
// [state.ModeManual] deployments that never need frame-level VAD. wakeWord
// may be nil; it is only consulted in [state.ModeWakeWord].
func New(cfg Config, engine vad.Engine, wakeWord WakeWordDetector) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		wakeWord: wakeWord,
		mode:     cfg.Mode,
		status:   state.StatusInactive,
	}
	if engine != nil {
		sess, err := engine.NewSession(vad.Config{
			SampleRate:       cfg.SampleRate,
			FrameSizeMs:      cfg.FrameSizeMs,
			SpeechThreshold:  cfg.SpeechThreshold,
			SilenceThreshold: cfg.SilenceThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("activation: open vad session: %w", err)
		}
		m.session = sess
	}
	return m, nil
}

// ProcessFrame implements the check_activation node's core decision (§5.2,
// §4.10): it classifies frame, advances status through the allowed sequence,
// and reports whether STT should run over this frame.
func (m *Manager) ProcessFrame(frame audio.AudioFrame) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := Result{Activation: m.snapshotLocked()}

	if m.mode == state.ModeOff {
		return result, nil
	}

	if m.mode == state.ModeScheduled {
		// TODO: honour a configured listening window once scheduling config
		// exists; until then SCHEDULED behaves like OFF.
		slog.Warn("activation: scheduled mode not implemented, treating frame as inactive")
		return result, nil
	}

	silent := isSilence(frame.Data, m.cfg.EnergyThreshold)
	var confidence float64
	isSpeech := false
	if !silent {
		if m.session != nil {
			event, err := m.session.ProcessFrame(frame.Data)
			if err != nil {
				return result, fmt.Errorf("activation: process frame: %w", err)
			}
			confidence = event.Probability
			isSpeech = event.Type == vad.VADSpeechStart || event.Type == vad.VADSpeechContinue
		} else {
			isSpeech = true
			confidence = 1
		}
	}
	result.IsSpeech = isSpeech

	switch m.mode {
	case state.ModeContinuous:
		m.processContinuous(isSpeech, &result)
	case state.ModeWakeWord:
		m.processWakeWord(frame, isSpeech, confidence, &result)
	case state.ModeManual:
		m.processManual(isSpeech, &result)
	}

	m.checkTimeoutLocked(&result)
	result.Activation = m.snapshotLocked()
	return result, nil
}

func (m *Manager) processContinuous(isSpeech bool, result *Result) {
	if !isSpeech {
		return
	}
	switch m.status {
	case state.StatusInactive:
		m.setStatusLocked(state.StatusListening)
		m.resetTimeoutLocked()
	case state.StatusListening:
		m.setStatusLocked(state.StatusProcessing)
		result.ShouldProcess = true
		m.resetTimeoutLocked()
	case state.StatusProcessing:
		result.ShouldProcess = true
		m.resetTimeoutLocked()
	}
}

func (m *Manager) processWakeWord(frame audio.AudioFrame, isSpeech bool, confidence float64, result *Result) {
	if !isSpeech {
		return
	}
	switch m.status {
	case state.StatusInactive:
		m.setStatusLocked(state.StatusListening)
	case state.StatusListening:
		if m.wakeWord == nil {
			return
		}
		detected, _ := m.wakeWord.Detect(frame, confidence)
		if detected {
			m.wakeWordDetected = true
			m.setStatusLocked(state.StatusProcessing)
			m.resetTimeoutLocked()
			// The frame that carried the wake word is not itself a command.
			result.ShouldProcess = false
		}
	case state.StatusProcessing:
		result.ShouldProcess = true
		m.resetTimeoutLocked()
	}
}

func (m *Manager) processManual(isSpeech bool, result *Result) {
	if m.status != state.StatusProcessing || !isSpeech {
		return
	}
	result.ShouldProcess = true
	m.resetTimeoutLocked()
}

func (m *Manager) checkTimeoutLocked(result *Result) {
	if m.cfg.Timeout <= 0 {
		return
	}
	if m.status != state.StatusListening && m.status != state.StatusProcessing {
		return
	}
	if m.deadline.IsZero() || time.Now().Before(m.deadline) {
		return
	}
	slog.Info("activation: timeout reached, returning to inactive", "previous_status", m.status)
	m.setStatusLocked(state.StatusInactive)
	result.ShouldProcess = false
}

// Activate manually forces the manager into PROCESSING, as used by
// [state.ModeManual] deployments and admin-triggered wake-ups. It is a
// no-op (returns false) in [state.ModeOff].
func (m *Manager) Activate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == state.ModeOff {
		return false
	}
	m.setStatusLocked(state.StatusProcessing)
	m.resetTimeoutLocked()
	return true
}

// Deactivate manually forces the manager back to INACTIVE.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(state.StatusInactive)
}

// SetMode changes the activation mode and resets to INACTIVE, matching the
// original activation manager's behaviour of discarding in-flight state on a
// mode switch rather than trying to reconcile it.
func (m *Manager) SetMode(mode state.ActivationMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.setStatusLocked(state.StatusInactive)
}

// SetStatus lets the graph report a status transition it owns (integration
// sets SPEAKING, tts sets INACTIVE) back into the manager, keeping it in
// sync with the turn state it will read on the next frame.
func (m *Manager) SetStatus(status state.ActivationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(status)
}

// Reset clears all accumulated state, including the underlying VAD session,
// and returns the manager to INACTIVE.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Reset()
	}
	m.activationTime = time.Time{}
	m.deadline = time.Time{}
	m.setStatusLocked(state.StatusInactive)
}

// Close releases the underlying VAD session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return m.session.Close()
}

func (m *Manager) setStatusLocked(status state.ActivationStatus) {
	if status == m.status {
		return
	}
	old := m.status
	m.status = status
	if status == state.StatusProcessing || status == state.StatusSpeaking {
		m.activationTime = time.Now()
	}
	if status == state.StatusInactive || status == state.StatusListening {
		m.wakeWordDetected = false
	}
	slog.Info("activation: status changed", "from", old, "to", status)
}

func (m *Manager) resetTimeoutLocked() {
	if m.cfg.Timeout <= 0 {
		return
	}
	m.deadline = time.Now().Add(m.cfg.Timeout)
}

func (m *Manager) snapshotLocked() state.Activation {
	return state.Activation{
		Status:             m.status,
		Mode:               m.mode,
		LastActivationTime: m.activationTime,
		WakeWordDetected:   m.wakeWordDetected,
	}
}

// isSilence applies a fast energy pre-filter to 16-bit little-endian PCM so
// that fully silent frames skip the VAD session entirely. It mirrors the
// original activation manager's quick energy check ahead of the more
// expensive speech classifier.
func isSilence(pcm []byte, threshold float64) bool {
	if len(pcm) < 2 {
		return true
	}
	var sumSquares float64
	samples := len(pcm) / 2
	for i := 0; i < samples; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		f := float64(v) / 32768.0
		sumSquares += f * f
	}
	rms := sumSquares / float64(samples)
	return rms < threshold*threshold
}

package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"mimitomo/internal/domain"
)

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when the microphone or a provider
	// refuses access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrEngineBusy is returned when a recognition engine is started twice.
	ErrEngineBusy = errors.New("recognition engine already started")
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental output from a streaming provider.
type TranscriptEvent struct {
	Kind          TranscriptKind
	Text          string
	Confidence    float64
	IsSpeechFinal bool
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RecognitionConfig mirrors the options a speech recognizer accepts.
type RecognitionConfig struct {
	Language       string
	InterimResults bool
	Continuous     bool
}

// RecognitionSink receives engine callbacks. Implementations must not block.
type RecognitionSink interface {
	Result(event domain.RecognitionEvent)
	End()
	Error(code domain.EngineErrorCode)
}

// RecognitionEngine is a continuous speech recognizer. After a successful
// Start the engine reports End exactly once, whatever stopped it.
type RecognitionEngine interface {
	Start(ctx context.Context, cfg RecognitionConfig, sink RecognitionSink) error
	Stop() error
	Close() error
}

// RecognitionEngineFactory creates engines. An error means recognition is not
// available in this environment.
type RecognitionEngineFactory interface {
	NewEngine() (RecognitionEngine, error)
}

// Utterance is one request to the speech output.
type Utterance struct {
	Text string
	Lang string
	Rate float64
}

// SpeechOutput speaks utterances. Speak blocks until playback ends or ctx is
// cancelled.
type SpeechOutput interface {
	Speak(ctx context.Context, utterance Utterance) error
	CancelAll()
}

// SpeechSynthesizer renders an utterance to encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, utterance Utterance) ([]byte, error)
}

// AudioPlayer plays encoded audio through the speaker.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

// ChatTurn is one history entry passed to the generative model.
type ChatTurn struct {
	Role domain.Role
	Text string
}

// GenerativeText is the companion's language model.
type GenerativeText interface {
	Reply(ctx context.Context, prompt string, history []ChatTurn, userContext string) (string, error)
	ExtractReminder(ctx context.Context, text string) (domain.ReminderDraft, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// EventSink emits session state and events to the UI.
type EventSink interface {
	SessionStateChanged(session string, state domain.SessionState, reason domain.SessionStateReason)
	TranscriptChanged(session string, transcript domain.Transcript)
	TranscriptFinalized(session string, raw string, transformed string)
	SessionError(session string, kind domain.ErrorKind, detail string)
	ScreenBusy(session string, busy bool)
	RecordsChanged(userID string, resource string)
}

// SessionMetrics records speech session counters.
type SessionMetrics interface {
	SessionStarted(session string, mode domain.SessionMode)
	SessionRestarted(session string)
	SessionFinalized(session string)
	EngineError(session string, kind domain.ErrorKind)
}

// RemoteMetrics records the latency of persistence and generative calls.
type RemoteMetrics interface {
	RemoteCall(op string, elapsed time.Duration, err error)
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

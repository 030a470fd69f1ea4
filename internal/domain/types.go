package domain

// SessionMode selects how a speech session treats silence and engine ends.
type SessionMode string

const (
	// SessionModeAmbient transcribes for display only and restarts the engine
	// whenever it ends on its own.
	SessionModeAmbient SessionMode = "ambient"
	// SessionModeCommand captures one utterance and hands it to a submit callback.
	SessionModeCommand SessionMode = "command"
)

// SessionState models the speech session lifecycle.
type SessionState string

const (
	SessionStateIdle               SessionState = "idle"
	SessionStateListening          SessionState = "listening"
	SessionStateStoppingForSilence SessionState = "stopping_for_silence"
	SessionStateRestarting         SessionState = "restarting"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonUnavailable      SessionStateReason = "unavailable"
	SessionReasonListening        SessionStateReason = "listening"
	SessionReasonRestarting       SessionStateReason = "restarting"
	SessionReasonRestarted        SessionStateReason = "restarted"
	SessionReasonSilence          SessionStateReason = "silence"
	SessionReasonStopped          SessionStateReason = "stopped"
	SessionReasonFinalized        SessionStateReason = "finalized"
	SessionReasonNoTranscript     SessionStateReason = "no_transcript"
	SessionReasonStartFailed      SessionStateReason = "start_failed"
	SessionReasonRestartFailed    SessionStateReason = "restart_failed"
	SessionReasonPermissionDenied SessionStateReason = "permission_denied"
	SessionReasonClosed           SessionStateReason = "closed"
)

// ErrorKind is the closed set of user-facing failure conditions.
type ErrorKind string

const (
	ErrorKindEngineUnavailable ErrorKind = "engine_unavailable"
	ErrorKindStartFailed       ErrorKind = "start_failed"
	ErrorKindPermissionDenied  ErrorKind = "permission_denied"
	ErrorKindNoSpeechDetected  ErrorKind = "no_speech"
	ErrorKindMicrophone        ErrorKind = "microphone"
	ErrorKindRemoteCallFailed  ErrorKind = "remote_call_failed"
)

// Permanent reports whether the condition ends the session for the rest of
// its lifetime.
func (k ErrorKind) Permanent() bool {
	return k == ErrorKindEngineUnavailable || k == ErrorKindPermissionDenied
}

// EngineErrorCode is the raw error code reported by a recognition engine.
type EngineErrorCode string

const (
	EngineErrorNoSpeech             EngineErrorCode = "no-speech"
	EngineErrorAborted              EngineErrorCode = "aborted"
	EngineErrorAudioCapture         EngineErrorCode = "audio-capture"
	EngineErrorNetwork              EngineErrorCode = "network"
	EngineErrorNotAllowed           EngineErrorCode = "not-allowed"
	EngineErrorServiceNotAllowed    EngineErrorCode = "service-not-allowed"
	EngineErrorBadGrammar           EngineErrorCode = "bad-grammar"
	EngineErrorLanguageNotSupported EngineErrorCode = "language-not-supported"
)

// ClassifyEngineError maps an engine code onto the user-facing taxonomy.
func ClassifyEngineError(code EngineErrorCode) ErrorKind {
	switch code {
	case EngineErrorNoSpeech:
		return ErrorKindNoSpeechDetected
	case EngineErrorNotAllowed, EngineErrorServiceNotAllowed:
		return ErrorKindPermissionDenied
	default:
		return ErrorKindMicrophone
	}
}

// RecognitionResult is one hypothesis reported by a recognition engine.
type RecognitionResult struct {
	IsFinal    bool    `json:"isFinal"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// RecognitionEvent carries the engine's result list. Results before
// ResultIndex were reported by earlier events and are unchanged.
type RecognitionEvent struct {
	ResultIndex int                 `json:"resultIndex"`
	Results     []RecognitionResult `json:"results"`
}

// Transcript is the text a session currently displays.
type Transcript struct {
	Finalized string `json:"finalized"`
	Interim   string `json:"interim"`
}

// Status summarizes one session for the UI.
type Status struct {
	Session    string       `json:"session"`
	Mode       SessionMode  `json:"mode"`
	State      SessionState `json:"state"`
	Active     bool         `json:"active"`
	Available  bool         `json:"available"`
	Busy       bool         `json:"busy"`
	Transcript Transcript   `json:"transcript"`
	Message    string       `json:"message,omitempty"`
}

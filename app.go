package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"mimitomo/internal/domain"
)

const (
	eventSession    = "session"
	eventTranscript = "transcript"
	eventFinal      = "final"
	eventError      = "error"
	eventBusy       = "busy"
	eventRecords    = "records"
)

// Publisher delivers events to whoever is watching.
type Publisher interface {
	Publish(event any)
}

// Event is the payload sent on /api/events.
type Event struct {
	Type        string             `json:"type"`
	Session     string             `json:"session,omitempty"`
	State       string             `json:"state,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Message     string             `json:"message,omitempty"`
	Transcript  *domain.Transcript `json:"transcript,omitempty"`
	Raw         string             `json:"raw,omitempty"`
	Transformed string             `json:"transformed,omitempty"`
	Kind        string             `json:"kind,omitempty"`
	Detail      string             `json:"detail,omitempty"`
	Busy        *bool              `json:"busy,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	Resource    string             `json:"resource,omitempty"`
}

// App turns session callbacks into UI events.
type App struct {
	pub Publisher
}

func NewApp(pub Publisher) *App {
	return &App{pub: pub}
}

// SessionStateChanged emits session lifecycle updates with the status line
// shown under the microphone button.
func (a *App) SessionStateChanged(session string, state domain.SessionState, reason domain.SessionStateReason) {
	a.pub.Publish(Event{
		Type:    eventSession,
		Session: session,
		State:   string(state),
		Reason:  string(reason),
		Message: sessionReasonMessage(reason),
	})
}

// TranscriptChanged emits the text currently on screen.
func (a *App) TranscriptChanged(session string, transcript domain.Transcript) {
	a.pub.Publish(Event{Type: eventTranscript, Session: session, Transcript: &transcript})
}

// TranscriptFinalized emits the text handed to the screen's submit action.
func (a *App) TranscriptFinalized(session string, raw string, transformed string) {
	a.pub.Publish(Event{Type: eventFinal, Session: session, Raw: raw, Transformed: transformed})
}

// SessionError emits a user-facing failure.
func (a *App) SessionError(session string, kind domain.ErrorKind, detail string) {
	a.pub.Publish(Event{
		Type:    eventError,
		Session: session,
		Kind:    string(kind),
		Message: errorMessage(kind, detail),
		Detail:  detail,
	})
}

// ScreenBusy emits while a screen waits on a submission.
func (a *App) ScreenBusy(session string, busy bool) {
	a.pub.Publish(Event{Type: eventBusy, Session: session, Busy: &busy, Message: busyMessage(session, busy)})
}

// RecordsChanged tells clients to refetch a resource.
func (a *App) RecordsChanged(userID string, resource string) {
	a.pub.Publish(Event{Type: eventRecords, UserID: userID, Resource: resource})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady, domain.SessionReasonStopped:
		return "ボタンを押すとお話しを聞き取ります"
	case domain.SessionReasonUnavailable:
		return "お使いの環境は音声認識に対応していません。"
	case domain.SessionReasonListening, domain.SessionReasonRestarted:
		return "聞き取っています..."
	case domain.SessionReasonRestarting:
		return "聞き取りを再開しています..."
	case domain.SessionReasonSilence:
		return "聞き取りを終了しています..."
	case domain.SessionReasonFinalized:
		return "お話しを受け付けました"
	case domain.SessionReasonNoTranscript:
		return "音声が聞き取れませんでした。もう一度お試しください。"
	case domain.SessionReasonStartFailed:
		return "マイクの開始に失敗しました。"
	case domain.SessionReasonRestartFailed:
		return "エラーで再開できませんでした。"
	case domain.SessionReasonPermissionDenied:
		return "マイクの使用が許可されていません。"
	default:
		return ""
	}
}

func errorMessage(kind domain.ErrorKind, detail string) string {
	switch kind {
	case domain.ErrorKindEngineUnavailable:
		return "お使いの環境は音声認識に対応していません。"
	case domain.ErrorKindStartFailed:
		return "マイクの開始に失敗しました。"
	case domain.ErrorKindPermissionDenied:
		return "マイクの使用が許可されていません。"
	case domain.ErrorKindNoSpeechDetected:
		return "音声が検出されませんでした。"
	case domain.ErrorKindMicrophone:
		return "マイクでエラーが発生しました。"
	case domain.ErrorKindRemoteCallFailed:
		return "エラーが発生しました。もう一度お試しください。"
	default:
		if detail == "" {
			return "エラーが発生しました。"
		}
		return detail
	}
}

func busyMessage(session string, busy bool) string {
	if !busy {
		return ""
	}
	switch session {
	case "reminders":
		return "AIが予定を整理しています..."
	case "chat":
		return "ひなたが考えています..."
	default:
		return ""
	}
}

// terminalPublisher prints events for the listen command. Interim text is
// redrawn in place; finalized text gets its own line.
type terminalPublisher struct {
	mu      sync.Mutex
	out     io.Writer
	interim bool
	last    string
}

func newTerminalPublisher(out io.Writer) *terminalPublisher {
	return &terminalPublisher{out: out}
}

func (p *terminalPublisher) Publish(event any) {
	e, ok := event.(Event)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case eventTranscript:
		line := strings.TrimSpace(e.Transcript.Finalized + e.Transcript.Interim)
		if line == p.last {
			return
		}
		p.last = line
		fmt.Fprintf(p.out, "\r\033[K%s", line)
		p.interim = line != ""
	case eventSession, eventError:
		if e.Message == "" {
			return
		}
		p.breakLine()
		fmt.Fprintf(p.out, "[%s] %s\n", e.Session, e.Message)
	case eventFinal:
		p.breakLine()
		fmt.Fprintf(p.out, "> %s\n", e.Transformed)
	}
}

func (p *terminalPublisher) breakLine() {
	if p.interim {
		fmt.Fprintln(p.out)
		p.interim = false
	}
}

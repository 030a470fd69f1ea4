package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

var (
	ErrUnknownScreen   = errors.New("unknown screen")
	ErrScreenNotActive = errors.New("screen is not active")
	ErrScreenBusy      = errors.New("screen is busy")
	ErrShellClosed     = errors.New("shell is closed")
)

// DefaultAutoStartDelay is how long the hearing aid waits after mounting
// before it starts listening.
const DefaultAutoStartDelay = 500 * time.Millisecond

// ScreenName identifies a screen that owns a speech session.
type ScreenName string

const (
	ScreenHearingAid ScreenName = "hearing-aid"
	ScreenChat       ScreenName = "chat"
	ScreenReminders  ScreenName = "reminders"
)

// SubmitFunc handles the finalized text of a command-mode screen and names
// the resource it changed.
type SubmitFunc func(ctx context.Context, text string) (resource string, err error)

// ScreenConfig describes one screen.
type ScreenConfig struct {
	Name           ScreenName
	Mode           domain.SessionMode
	Language       string
	SilenceTimeout time.Duration
	AutoStart      bool
	AutoStartDelay time.Duration
	Submit         SubmitFunc
	OnLeave        func()
}

// HearingAidScreen transcribes continuously for display.
func HearingAidScreen(silence time.Duration, autoStartDelay time.Duration) ScreenConfig {
	if silence <= 0 {
		silence = AmbientSilenceTimeout
	}
	if autoStartDelay <= 0 {
		autoStartDelay = DefaultAutoStartDelay
	}
	return ScreenConfig{
		Name:           ScreenHearingAid,
		Mode:           domain.SessionModeAmbient,
		SilenceTimeout: silence,
		AutoStart:      true,
		AutoStartDelay: autoStartDelay,
	}
}

// ChatScreen dictates one message to the companion. Leaving the screen
// silences the companion.
func ChatScreen(silence time.Duration, conversation *Conversation, voice *Voice, userID string) ScreenConfig {
	return ScreenConfig{
		Name:           ScreenChat,
		Mode:           domain.SessionModeCommand,
		SilenceTimeout: silence,
		Submit: func(ctx context.Context, text string) (string, error) {
			_, err := conversation.Send(ctx, userID, text)
			return "messages", err
		},
		OnLeave: voice.CancelAll,
	}
}

// ReminderScreen dictates one reminder.
func ReminderScreen(silence time.Duration, reminders *Reminders, userID string) ScreenConfig {
	return ScreenConfig{
		Name:           ScreenReminders,
		Mode:           domain.SessionModeCommand,
		SilenceTimeout: silence,
		Submit: func(ctx context.Context, text string) (string, error) {
			_, err := reminders.AddFromSpeech(ctx, userID, text)
			return "reminders", err
		},
	}
}

type screen struct {
	cfg        ScreenConfig
	controller *SessionController
	autoStart  ports.Timer
	busy       atomic.Bool
}

// Shell mounts one screen at a time, so at most one speech session holds the
// microphone.
type Shell struct {
	engines ports.RecognitionEngineFactory
	rules   ports.RulesEngine
	events  ports.EventSink
	clock   ports.Clock
	userID  string
	opts    []SessionOption
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	screens map[ScreenName]*screen
	current *screen
	closed  bool
}

func NewShell(
	engines ports.RecognitionEngineFactory,
	rules ports.RulesEngine,
	events ports.EventSink,
	clock ports.Clock,
	userID string,
	log zerolog.Logger,
	screens []ScreenConfig,
	opts ...SessionOption,
) *Shell {
	if clock == nil {
		clock = SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	sh := &Shell{
		engines: engines,
		rules:   rules,
		events:  events,
		clock:   clock,
		userID:  userID,
		opts:    append([]SessionOption{WithClock(clock), WithLogger(log)}, opts...),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		screens: make(map[ScreenName]*screen, len(screens)),
	}
	for _, cfg := range screens {
		sh.screens[cfg.Name] = &screen{cfg: cfg}
	}
	return sh
}

// Enter mounts a screen, leaving the current one first. Mounting creates the
// screen's recognition engine.
func (sh *Shell) Enter(name ScreenName) (domain.Status, error) {
	sh.mu.Lock()
	if sh.closed {
		sh.mu.Unlock()
		return domain.Status{}, ErrShellClosed
	}
	s, ok := sh.screens[name]
	if !ok {
		sh.mu.Unlock()
		return domain.Status{}, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	if sh.current != s {
		if sh.current != nil {
			sh.unmount(sh.current)
		}
		sh.mount(s)
		sh.current = s
	}
	sh.mu.Unlock()

	return sh.Status(name)
}

// Leave unmounts the screen if it is current.
func (sh *Shell) Leave(name ScreenName) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.screens[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	if sh.current != s {
		return nil
	}
	sh.unmount(s)
	sh.current = nil
	return nil
}

// Start begins listening on the current screen.
func (sh *Shell) Start(name ScreenName) error {
	s, err := sh.active(name)
	if err != nil {
		return err
	}
	if s.busy.Load() {
		return ErrScreenBusy
	}
	return s.controller.Start()
}

func (sh *Shell) Stop(name ScreenName) error {
	s, err := sh.active(name)
	if err != nil {
		return err
	}
	return s.controller.Stop()
}

// Status reports the session of a screen. Screens that are not mounted
// report idle.
func (sh *Shell) Status(name ScreenName) (domain.Status, error) {
	sh.mu.Lock()
	s, ok := sh.screens[name]
	if !ok {
		sh.mu.Unlock()
		return domain.Status{}, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	controller := s.controller
	mounted := sh.current == s
	sh.mu.Unlock()

	status := domain.Status{Session: string(name), Mode: s.cfg.Mode, State: domain.SessionStateIdle}
	if mounted && controller != nil {
		status = controller.Status()
	}
	status.Busy = s.busy.Load()
	return status, nil
}

// Current returns the mounted screen, if any.
func (sh *Shell) Current() (ScreenName, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.current == nil {
		return "", false
	}
	return sh.current.cfg.Name, true
}

// RunBusy marks the screen busy while fn runs. A screen runs one submission
// at a time.
func (sh *Shell) RunBusy(name ScreenName, fn func() error) error {
	sh.mu.Lock()
	s, ok := sh.screens[name]
	sh.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	return sh.runBusy(s, fn)
}

// Close unmounts the current screen and waits for pending submissions.
func (sh *Shell) Close() {
	sh.mu.Lock()
	if !sh.closed {
		sh.closed = true
		if sh.current != nil {
			sh.unmount(sh.current)
			sh.current = nil
		}
	}
	sh.mu.Unlock()

	sh.cancel()
	sh.wg.Wait()
}

func (sh *Shell) active(name ScreenName) (*screen, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.screens[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	if sh.current != s || s.controller == nil {
		return nil, fmt.Errorf("%w: %s", ErrScreenNotActive, name)
	}
	return s, nil
}

func (sh *Shell) mount(s *screen) {
	cfg := SessionConfig{
		Name:           string(s.cfg.Name),
		Mode:           s.cfg.Mode,
		Language:       s.cfg.Language,
		SilenceTimeout: s.cfg.SilenceTimeout,
	}
	if s.cfg.Submit != nil {
		cfg.OnFinalize = func(text string) { sh.submit(s, text) }
	}
	controller := NewSessionController(sh.engines, sh.rules, sh.events, cfg, sh.opts...)
	s.controller = controller
	sh.log.Debug().Str("screen", string(s.cfg.Name)).Msg("screen mounted")

	if s.cfg.AutoStart {
		s.autoStart = sh.clock.AfterFunc(s.cfg.AutoStartDelay, func() {
			if err := controller.Start(); err != nil && !errors.Is(err, ErrSessionClosed) {
				sh.log.Warn().Err(err).Str("screen", string(s.cfg.Name)).Msg("auto start failed")
			}
		})
	}
}

func (sh *Shell) unmount(s *screen) {
	if s.autoStart != nil {
		s.autoStart.Stop()
		s.autoStart = nil
	}
	if s.controller != nil {
		s.controller.Close()
		s.controller = nil
	}
	if s.cfg.OnLeave != nil {
		s.cfg.OnLeave()
	}
	sh.log.Debug().Str("screen", string(s.cfg.Name)).Msg("screen left")
}

// submit runs on the controller goroutine and must return immediately.
func (sh *Shell) submit(s *screen, text string) {
	sh.wg.Add(1)
	go func() {
		defer sh.wg.Done()
		var resource string
		err := sh.runBusy(s, func() error {
			var err error
			resource, err = s.cfg.Submit(sh.ctx, text)
			return err
		})
		switch {
		case errors.Is(err, ErrScreenBusy):
			sh.log.Warn().Str("screen", string(s.cfg.Name)).Msg("dropped submission while busy")
		case err != nil:
			sh.log.Error().Err(err).Str("screen", string(s.cfg.Name)).Msg("submission failed")
			sh.events.SessionError(string(s.cfg.Name), domain.ErrorKindRemoteCallFailed, err.Error())
		default:
			sh.events.RecordsChanged(sh.userID, resource)
		}
	}()
}

func (sh *Shell) runBusy(s *screen, fn func() error) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrScreenBusy
	}
	sh.events.ScreenBusy(string(s.cfg.Name), true)
	defer func() {
		s.busy.Store(false)
		sh.events.ScreenBusy(string(s.cfg.Name), false)
	}()
	return fn()
}

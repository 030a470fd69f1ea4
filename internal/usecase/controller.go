package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

var (
	ErrNotListening      = errors.New("speech session is not listening")
	ErrEngineUnavailable = errors.New("speech recognition is not available")
	ErrStartFailed       = errors.New("speech recognition failed to start")
	ErrSessionClosed     = errors.New("speech session is closed")
)

const (
	AmbientSilenceTimeout = 20 * time.Second
	CommandSilenceTimeout = 1500 * time.Millisecond
	DefaultLanguage       = "ja-JP"
)

// SessionConfig parameterizes one speech session.
type SessionConfig struct {
	Name           string
	Mode           domain.SessionMode
	Language       string
	SilenceTimeout time.Duration

	// OnFinalize receives the committed text of a command-mode session. It
	// runs on the controller goroutine and must not block.
	OnFinalize func(text string)
	// OnError observes every reported failure, with the same constraint.
	OnError func(kind domain.ErrorKind)
}

// SessionOption customizes a SessionController.
type SessionOption func(*SessionController)

func WithClock(clock ports.Clock) SessionOption {
	return func(c *SessionController) { c.clock = clock }
}

func WithSessionMetrics(metrics ports.SessionMetrics) SessionOption {
	return func(c *SessionController) { c.metrics = metrics }
}

func WithLogger(log zerolog.Logger) SessionOption {
	return func(c *SessionController) { c.log = log }
}

// SessionController wraps a recognition engine into a silence-aware dictation
// session. All state is owned by a single goroutine that consumes engine
// callbacks, timer expiries and caller requests in arrival order.
type SessionController struct {
	cfg       SessionConfig
	engine    ports.RecognitionEngine
	events    ports.EventSink
	metrics   ports.SessionMetrics
	clock     ports.Clock
	finalizer transcriptFinalizer
	log       zerolog.Logger

	inbox     *inbox
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	state             domain.SessionState
	transcript        *transcriptAggregator
	userRequestedStop bool
	generation        uint64
	silence           ports.Timer
	silenceSeq        uint64
}

// NewSessionController creates the engine and starts the controller loop.
// When the factory fails the session reports EngineUnavailable once and every
// Start returns ErrEngineUnavailable.
func NewSessionController(
	engines ports.RecognitionEngineFactory,
	rules ports.RulesEngine,
	events ports.EventSink,
	cfg SessionConfig,
	opts ...SessionOption,
) *SessionController {
	if cfg.Mode == "" {
		cfg.Mode = domain.SessionModeCommand
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = CommandSilenceTimeout
		if cfg.Mode == domain.SessionModeAmbient {
			cfg.SilenceTimeout = AmbientSilenceTimeout
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		cfg:        cfg,
		events:     events,
		metrics:    noopSessionMetrics{},
		clock:      SystemClock{},
		log:        zerolog.Nop(),
		inbox:      newInbox(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      domain.SessionStateIdle,
		transcript: newTranscriptAggregator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("session", cfg.Name).Str("mode", string(cfg.Mode)).Logger()
	c.finalizer = newTranscriptFinalizer(rules, events, c.log)

	engine, err := engines.NewEngine()
	if err != nil {
		c.log.Warn().Err(err).Msg("speech recognition unavailable")
		c.events.SessionStateChanged(cfg.Name, domain.SessionStateIdle, domain.SessionReasonUnavailable)
		c.reportError(domain.ErrorKindEngineUnavailable, err.Error())
	} else {
		c.engine = engine
		c.events.SessionStateChanged(cfg.Name, domain.SessionStateIdle, domain.SessionReasonReady)
	}

	go c.run()
	return c
}

func (c *SessionController) Name() string {
	return c.cfg.Name
}

// Start resets the transcript and starts the engine. Calling Start on a
// session that is already listening does nothing.
func (c *SessionController) Start() error {
	reply := make(chan error, 1)
	return c.request(startRequest{reply: reply}, reply)
}

// Stop asks the engine to stop. The transcript is finalized when the engine
// reports its end.
func (c *SessionController) Stop() error {
	reply := make(chan error, 1)
	return c.request(stopRequest{reply: reply}, reply)
}

// Status returns a snapshot of the session.
func (c *SessionController) Status() domain.Status {
	reply := make(chan domain.Status, 1)
	select {
	case <-c.done:
		return c.closedStatus()
	default:
	}
	c.inbox.push(statusRequest{reply: reply})
	select {
	case status := <-reply:
		return status
	case <-c.done:
		return c.closedStatus()
	}
}

// Close stops the engine, detaches its callbacks and cancels the silence
// timer. It is safe to call more than once.
func (c *SessionController) Close() {
	c.closeOnce.Do(func() {
		c.inbox.push(closeRequest{})
	})
	<-c.done
}

func (c *SessionController) request(event sessionEvent, reply chan error) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	c.inbox.push(event)
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

func (c *SessionController) run() {
	defer close(c.done)
	for range c.inbox.notify {
		for _, event := range c.inbox.drain() {
			if c.handle(event) {
				return
			}
		}
	}
}

func (c *SessionController) handle(event sessionEvent) bool {
	switch e := event.(type) {
	case startRequest:
		e.reply <- c.handleStart()
	case stopRequest:
		e.reply <- c.handleStop()
	case statusRequest:
		e.reply <- c.status()
	case engineResult:
		c.handleResult(e)
	case engineEnd:
		c.handleEnd(e)
	case engineError:
		c.handleError(e)
	case silenceExpired:
		c.handleSilence(e)
	case closeRequest:
		c.handleClose()
		return true
	}
	return false
}

func (c *SessionController) handleStart() error {
	if c.engine == nil {
		return ErrEngineUnavailable
	}
	if c.state != domain.SessionStateIdle {
		c.log.Debug().Str("state", string(c.state)).Msg("start ignored; session already listening")
		return nil
	}

	c.transcript.Reset()
	c.userRequestedStop = false
	c.cancelSilence()
	c.publishTranscript()

	if err := c.startEngine(); err != nil {
		c.generation++
		c.setState(domain.SessionStateIdle, domain.SessionReasonStartFailed)
		c.reportError(domain.ErrorKindStartFailed, err.Error())
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	c.metrics.SessionStarted(c.cfg.Name, c.cfg.Mode)
	c.setState(domain.SessionStateListening, domain.SessionReasonListening)
	return nil
}

func (c *SessionController) handleStop() error {
	if c.state == domain.SessionStateIdle {
		return ErrNotListening
	}
	if c.userRequestedStop {
		return nil
	}
	c.userRequestedStop = true
	c.cancelSilence()
	if err := c.engine.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("engine stop failed")
	}
	return nil
}

func (c *SessionController) handleResult(e engineResult) {
	if e.generation != c.generation || c.state == domain.SessionStateIdle {
		return
	}
	c.transcript.Add(e.event)
	c.publishTranscript()
	if c.userRequestedStop {
		return
	}
	c.armSilence()
}

func (c *SessionController) handleSilence(e silenceExpired) {
	if e.seq != c.silenceSeq || c.state == domain.SessionStateIdle {
		return
	}
	c.silence = nil

	if c.cfg.Mode == domain.SessionModeAmbient {
		c.log.Debug().Msg("silence elapsed; clearing transcript")
		c.transcript.Reset()
		c.publishTranscript()
		return
	}

	c.userRequestedStop = true
	c.setState(domain.SessionStateStoppingForSilence, domain.SessionReasonSilence)
	if err := c.engine.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("engine stop after silence failed")
	}
}

func (c *SessionController) handleEnd(e engineEnd) {
	if e.generation != c.generation || c.state == domain.SessionStateIdle {
		return
	}

	if c.cfg.Mode == domain.SessionModeAmbient && !c.userRequestedStop {
		c.restart()
		return
	}

	c.cancelSilence()
	c.generation++

	if c.cfg.Mode == domain.SessionModeAmbient {
		c.transcript.ClearInterim()
		c.publishTranscript()
		c.setState(domain.SessionStateIdle, domain.SessionReasonStopped)
		return
	}

	raw := c.transcript.Raw()
	c.transcript.Reset()
	c.publishTranscript()
	if raw == "" {
		c.setState(domain.SessionStateIdle, domain.SessionReasonNoTranscript)
		return
	}

	text := c.finalizer.Finalize(c.cfg.Name, raw)
	c.metrics.SessionFinalized(c.cfg.Name)
	c.setState(domain.SessionStateIdle, domain.SessionReasonFinalized)
	if c.cfg.OnFinalize != nil {
		c.cfg.OnFinalize(text)
	}
}

func (c *SessionController) restart() {
	c.setState(domain.SessionStateRestarting, domain.SessionReasonRestarting)
	c.transcript.ClearInterim()
	c.publishTranscript()

	if err := c.startEngine(); err != nil {
		c.generation++
		c.cancelSilence()
		c.setState(domain.SessionStateIdle, domain.SessionReasonRestartFailed)
		c.reportError(domain.ErrorKindStartFailed, err.Error())
		return
	}

	c.metrics.SessionRestarted(c.cfg.Name)
	c.setState(domain.SessionStateListening, domain.SessionReasonRestarted)
}

func (c *SessionController) handleError(e engineError) {
	if e.generation != c.generation || c.state == domain.SessionStateIdle {
		return
	}
	if e.code == domain.EngineErrorAborted && c.userRequestedStop {
		return
	}

	kind := domain.ClassifyEngineError(e.code)
	c.log.Warn().Str("code", string(e.code)).Str("kind", string(kind)).Msg("recognition error")
	c.metrics.EngineError(c.cfg.Name, kind)
	c.reportError(kind, string(e.code))

	if kind == domain.ErrorKindPermissionDenied {
		c.userRequestedStop = true
		c.generation++
		c.cancelSilence()
		if err := c.engine.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("engine stop after permission denial failed")
		}
		if c.cfg.Mode == domain.SessionModeCommand {
			c.transcript.Reset()
		} else {
			c.transcript.ClearInterim()
		}
		c.publishTranscript()
		c.setState(domain.SessionStateIdle, domain.SessionReasonPermissionDenied)
		return
	}

	if c.cfg.Mode == domain.SessionModeCommand {
		c.transcript.Reset()
		c.publishTranscript()
	}
}

func (c *SessionController) handleClose() {
	c.cancelSilence()
	c.generation++
	if c.engine != nil {
		if c.state != domain.SessionStateIdle {
			if err := c.engine.Stop(); err != nil {
				c.log.Warn().Err(err).Msg("engine stop on close failed")
			}
		}
		if err := c.engine.Close(); err != nil {
			c.log.Warn().Err(err).Msg("engine close failed")
		}
	}
	c.cancel()
	c.transcript.Reset()
	c.state = domain.SessionStateIdle
	c.events.SessionStateChanged(c.cfg.Name, domain.SessionStateIdle, domain.SessionReasonClosed)
}

func (c *SessionController) startEngine() error {
	c.generation++
	return c.engine.Start(c.ctx, ports.RecognitionConfig{
		Language:       c.cfg.Language,
		InterimResults: true,
		Continuous:     true,
	}, engineSink{generation: c.generation, inbox: c.inbox})
}

func (c *SessionController) armSilence() {
	c.cancelSilence()
	seq := c.silenceSeq
	c.silence = c.clock.AfterFunc(c.cfg.SilenceTimeout, func() {
		c.inbox.push(silenceExpired{seq: seq})
	})
}

// cancelSilence stops the pending timer and invalidates any expiry that is
// already queued.
func (c *SessionController) cancelSilence() {
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
	c.silenceSeq++
}

func (c *SessionController) setState(state domain.SessionState, reason domain.SessionStateReason) {
	c.state = state
	c.log.Debug().Str("state", string(state)).Str("reason", string(reason)).Msg("session state changed")
	c.events.SessionStateChanged(c.cfg.Name, state, reason)
}

func (c *SessionController) publishTranscript() {
	c.events.TranscriptChanged(c.cfg.Name, c.transcript.Snapshot())
}

func (c *SessionController) reportError(kind domain.ErrorKind, detail string) {
	c.events.SessionError(c.cfg.Name, kind, detail)
	if c.cfg.OnError != nil {
		c.cfg.OnError(kind)
	}
}

func (c *SessionController) status() domain.Status {
	return domain.Status{
		Session:    c.cfg.Name,
		Mode:       c.cfg.Mode,
		State:      c.state,
		Active:     c.state != domain.SessionStateIdle,
		Available:  c.engine != nil,
		Transcript: c.transcript.Snapshot(),
	}
}

func (c *SessionController) closedStatus() domain.Status {
	return domain.Status{Session: c.cfg.Name, Mode: c.cfg.Mode, State: domain.SessionStateIdle}
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) SessionStarted(string, domain.SessionMode) {}
func (noopSessionMetrics) SessionRestarted(string)                   {}
func (noopSessionMetrics) SessionFinalized(string)                   {}
func (noopSessionMetrics) EngineError(string, domain.ErrorKind)      {}

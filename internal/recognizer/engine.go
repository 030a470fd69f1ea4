package recognizer

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
	// ErrUnavailable means no microphone or transcription provider is wired.
	ErrUnavailable = errors.New("speech recognition is not available")
	ErrClosed      = errors.New("recognition engine closed")
)

const (
	defaultNoSpeechTimeout = 8 * time.Second
	defaultStreamWait      = 4 * time.Second
)

// Config controls capture and streaming for every engine of a factory.
type Config struct {
	Audio           ports.AudioConfig
	Streaming       ports.StreamingConfig
	ChunkSize       int
	StreamingGrace  time.Duration
	NoSpeechTimeout time.Duration
	StreamWait      time.Duration
}

// Prober reports whether a capture backend can run on this machine.
type Prober interface {
	Available() error
}

// Factory creates engines that capture the microphone and stream it to a
// transcription provider.
type Factory struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	log      zerolog.Logger
}

func NewFactory(audio ports.AudioCapture, provider ports.TranscriptionProvider, cfg Config, log zerolog.Logger) *Factory {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.NoSpeechTimeout <= 0 {
		cfg.NoSpeechTimeout = defaultNoSpeechTimeout
	}
	if cfg.StreamWait <= 0 {
		cfg.StreamWait = defaultStreamWait
	}
	return &Factory{audio: audio, provider: provider, cfg: cfg, log: log}
}

func (f *Factory) NewEngine() (ports.RecognitionEngine, error) {
	if f.audio == nil || f.provider == nil {
		return nil, ErrUnavailable
	}
	if prober, ok := f.audio.(Prober); ok {
		if err := prober.Available(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return &Engine{audio: f.audio, provider: f.provider, cfg: f.cfg, log: f.log}, nil
}

// Engine runs one recognition at a time. A run ends when Stop is called, the
// provider closes the stream, the microphone fails or nothing is heard before
// the no-speech timeout.
type Engine struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	log      zerolog.Logger

	mu     sync.Mutex
	run    *run
	closed bool
}

type run struct {
	cancel   context.CancelFunc
	audio    ports.AudioSession
	stream   ports.StreamingSession
	sink     ports.RecognitionSink
	stopping atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
	ended    chan struct{}
}

func newRun(sink ports.RecognitionSink) *run {
	return &run{sink: sink, stopped: make(chan struct{}), done: make(chan struct{}), ended: make(chan struct{})}
}

// end marks the run finished before reporting it, so a restart triggered by
// End finds the engine free.
func (r *run) end() {
	close(r.done)
	r.sink.End()
	close(r.ended)
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (e *Engine) Start(ctx context.Context, cfg ports.RecognitionConfig, sink ports.RecognitionSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.run != nil && !e.run.finished() {
		return ports.ErrEngineBusy
	}

	streaming := e.cfg.Streaming
	streaming.InterimResults = cfg.InterimResults
	if cfg.Language != "" {
		streaming.Language = cfg.Language
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := e.provider.StartStreaming(runCtx, streaming)
	if err != nil {
		cancel()
		if errors.Is(err, ports.ErrPermissionDenied) {
			e.failAsync(sink, domain.EngineErrorServiceNotAllowed)
			return nil
		}
		return fmt.Errorf("start transcription stream: %w", err)
	}

	audioSession, err := e.audio.Start(runCtx, e.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		if errors.Is(err, ports.ErrPermissionDenied) {
			e.failAsync(sink, domain.EngineErrorNotAllowed)
			return nil
		}
		return fmt.Errorf("start microphone: %w", err)
	}

	r := newRun(sink)
	r.cancel = cancel
	r.audio = audioSession
	r.stream = stream
	e.run = r
	go e.loop(r, cfg.Continuous)
	return nil
}

// Stop asks the current run to finish. End is reported once the provider has
// flushed its last results.
func (e *Engine) Stop() error {
	e.mu.Lock()
	r := e.run
	e.mu.Unlock()
	if r == nil || r.finished() {
		return nil
	}
	e.requestStop(r)
	return nil
}

// Close stops the current run and waits for it.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	r := e.run
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	e.requestStop(r)
	<-r.ended
	return nil
}

// failAsync reports a refused start the way a browser does: an error
// followed by the end of the session.
func (e *Engine) failAsync(sink ports.RecognitionSink, code domain.EngineErrorCode) {
	r := newRun(sink)
	e.run = r
	go func() {
		sink.Error(code)
		r.end()
	}()
}

func (e *Engine) requestStop(r *run) {
	if r.audio == nil {
		return
	}
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		go func() {
			defer close(r.stopped)
			if err := r.audio.Stop(); err != nil {
				e.log.Warn().Err(err).Msg("failed to stop audio capture cleanly")
			}
			if e.cfg.StreamingGrace > 0 {
				time.Sleep(e.cfg.StreamingGrace)
			}
			_ = r.stream.CloseSend()
			if err := waitForStream(r.stream, e.cfg.StreamWait); err != nil {
				e.log.Debug().Err(err).Msg("transcription stream ended with error")
			}
		}()
	})
}

func (e *Engine) loop(r *run, continuous bool) {
	audioDone := make(chan struct{})
	audioErr := make(chan error, 1)
	go pumpAudioChunks(r.audio, r.stream, e.cfg.ChunkSize, func(err error) {
		audioErr <- err
	}, audioDone)

	noSpeech := time.NewTimer(e.cfg.NoSpeechTimeout)
	defer noSpeech.Stop()

	var (
		results resultList
		heard   bool
		failure domain.EngineErrorCode
	)
	fail := func(code domain.EngineErrorCode) {
		if failure == "" && !r.stopping.Load() {
			failure = code
		}
		e.requestStop(r)
	}

	events := r.stream.Events()
	for events != nil {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			recognition, ok := results.add(event)
			if !ok {
				continue
			}
			if !heard {
				heard = true
				noSpeech.Stop()
			}
			r.sink.Result(recognition)
			if !continuous && event.Kind == ports.TranscriptKindFinal {
				e.requestStop(r)
			}
		case err := <-audioErr:
			e.log.Warn().Err(err).Msg("audio pump stopped")
			fail(domain.EngineErrorAudioCapture)
		case <-noSpeech.C:
			if !heard {
				fail(domain.EngineErrorNoSpeech)
			}
		}
	}

	if err := r.stream.Wait(); err != nil {
		e.log.Warn().Err(err).Msg("transcription stream failed")
		fail(domain.EngineErrorNetwork)
	}
	// The provider may close first; make sure the microphone is released.
	e.requestStop(r)
	<-r.stopped
	<-audioDone
	r.cancel()

	if failure != "" {
		r.sink.Error(failure)
	}
	r.end()
}

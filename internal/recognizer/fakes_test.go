package recognizer

import (
	"context"
	"errors"
	"io"
	"sync"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

type fakeCapture struct {
	mu       sync.Mutex
	err      error
	sessions []*fakeAudioSession
	probeErr error
}

func (c *fakeCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	session := newFakeAudioSession()
	c.sessions = append(c.sessions, session)
	return session, nil
}

func (c *fakeCapture) Available() error { return c.probeErr }

func (c *fakeCapture) last() *fakeAudioSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

type fakeAudioSession struct {
	chunks   chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func newFakeAudioSession() *fakeAudioSession {
	return &fakeAudioSession{chunks: make(chan []byte, 8), stop: make(chan struct{})}
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	select {
	case chunk := <-s.chunks:
		return copy(p, chunk), nil
	case <-s.stop:
		return 0, io.EOF
	}
}

func (s *fakeAudioSession) Close() error { return s.Stop() }

func (s *fakeAudioSession) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *fakeAudioSession) isStopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

type fakeProvider struct {
	mu      sync.Mutex
	err     error
	configs []ports.StreamingConfig
	streams []*fakeStream
}

func (p *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = append(p.configs, cfg)
	if p.err != nil {
		return nil, p.err
	}
	stream := newFakeStream()
	p.streams = append(p.streams, stream)
	return stream, nil
}

func (p *fakeProvider) last() *fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

// fakeStream ends as soon as the sender closes, like a provider that has
// already flushed its results.
type fakeStream struct {
	mu         sync.Mutex
	events     chan ports.TranscriptEvent
	done       chan struct{}
	finishOnce sync.Once
	err        error
	sent       int
	closedSend bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan ports.TranscriptEvent, 16), done: make(chan struct{})}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closedSend {
		return errors.New("audio stream is already closed")
	}
	s.sent += len(chunk)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	s.closedSend = true
	s.mu.Unlock()
	s.finish(nil)
	return nil
}

func (s *fakeStream) Events() <-chan ports.TranscriptEvent { return s.events }

func (s *fakeStream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.finish(nil)
	return s.Wait()
}

func (s *fakeStream) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
		close(s.done)
	})
}

func (s *fakeStream) emit(kind ports.TranscriptKind, text string) {
	s.events <- ports.TranscriptEvent{Kind: kind, Text: text}
}

type recordingSink struct {
	mu      sync.Mutex
	results []domain.RecognitionEvent
	errors  []domain.EngineErrorCode
	ends    int
	ended   chan struct{}
	got     chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ended: make(chan struct{}, 4), got: make(chan struct{}, 16)}
}

func (s *recordingSink) Result(event domain.RecognitionEvent) {
	s.mu.Lock()
	s.results = append(s.results, event)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *recordingSink) End() {
	s.mu.Lock()
	s.ends++
	s.mu.Unlock()
	s.ended <- struct{}{}
}

func (s *recordingSink) Error(code domain.EngineErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, code)
}

func (s *recordingSink) snapshot() ([]domain.RecognitionEvent, []domain.EngineErrorCode, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RecognitionEvent(nil), s.results...), append([]domain.EngineErrorCode(nil), s.errors...), s.ends
}

func (s *fakeStream) closedSendOrDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

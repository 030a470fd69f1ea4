package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mimitomo/internal/ports"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1"
	defaultModel   = "nova-2"
)

var ErrMissingAPIKey = errors.New("deepgram api key is not configured")

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// Endpointing is the trailing silence Deepgram waits for before it marks
	// speech final. Zero leaves the server default.
	Endpointing time.Duration
	// KeepAlive is how often an idle stream is pinged. Zero disables it.
	KeepAlive time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram live
// transcription.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

// Configured reports whether an API key is present.
func (p *Provider) Configured() bool {
	return strings.TrimSpace(p.cfg.APIKey) != ""
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if !p.Configured() {
		return nil, ErrMissingAPIKey
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("deepgram rejected credentials (%d): %w", resp.StatusCode, ports.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	session := &streamingSession{
		conn:      conn,
		events:    make(chan ports.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		keepAlive: p.cfg.KeepAlive,
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type streamingSession struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events chan ports.TranscriptEvent
	audio  chan []byte
	done   chan struct{}
	// readDone is closed once the provider stops sending.
	readDone chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		// A cleanly ended stream drops trailing audio.
		return s.waitErr()
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan ports.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setErr(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("failed to send audio: %w", err))
				_ = s.conn.Close()
				return
			}
		case <-s.readDone:
			return
		case <-tick:
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				s.setErr(fmt.Errorf("failed to send keepalive: %w", err))
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		if strings.EqualFold(msg.Type, "Error") {
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			_ = s.conn.Close()
			return
		}

		event, ok := msg.transcriptEvent()
		if !ok {
			continue
		}
		s.emit(event)
	}
}

func (s *streamingSession) emit(event ports.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

func (m listenMessage) transcriptEvent() (ports.TranscriptEvent, bool) {
	if len(m.Channel.Alternatives) == 0 {
		return ports.TranscriptEvent{}, false
	}
	best := m.Channel.Alternatives[0]
	text := strings.TrimSpace(best.Transcript)
	if text == "" {
		return ports.TranscriptEvent{}, false
	}

	event := ports.TranscriptEvent{
		Kind:          ports.TranscriptKindPartial,
		Text:          text,
		Confidence:    best.Confidence,
		IsSpeechFinal: m.SpeechFinal,
	}
	if m.IsFinal || m.SpeechFinal {
		event.Kind = ports.TranscriptKindFinal
	}
	return event, true
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	language := streamCfg.Language
	if language == "" {
		language = providerCfg.Language
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if language != "" {
		query.Set("language", language)
	}
	if providerCfg.Endpointing > 0 {
		query.Set("endpointing", strconv.FormatInt(providerCfg.Endpointing.Milliseconds(), 10))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"mimitomo/internal/ports"
)

// Speaker renders utterances with a synthesizer and plays them.
type Speaker struct {
	synth  ports.SpeechSynthesizer
	player ports.AudioPlayer

	mu      sync.Mutex
	next    uint64
	cancels map[uint64]context.CancelFunc
}

func NewSpeaker(synth ports.SpeechSynthesizer, player ports.AudioPlayer) *Speaker {
	return &Speaker{synth: synth, player: player, cancels: make(map[uint64]context.CancelFunc)}
}

func (s *Speaker) Speak(ctx context.Context, utterance ports.Utterance) error {
	ctx, cancel := context.WithCancel(ctx)
	id := s.track(cancel)
	defer s.untrack(id)

	audio, err := s.synth.Synthesize(ctx, utterance)
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	return s.player.Play(ctx, audio)
}

// CancelAll interrupts every utterance in progress.
func (s *Speaker) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
}

func (s *Speaker) track(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.cancels[s.next] = cancel
	return s.next
}

func (s *Speaker) untrack(id uint64) {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// LogSpeaker writes utterances to the log. It stands in for a speaker on
// machines without text to speech.
type LogSpeaker struct {
	log zerolog.Logger
}

func NewLogSpeaker(log zerolog.Logger) *LogSpeaker {
	return &LogSpeaker{log: log}
}

func (s *LogSpeaker) Speak(_ context.Context, utterance ports.Utterance) error {
	s.log.Info().Str("lang", utterance.Lang).Float64("rate", utterance.Rate).Str("text", utterance.Text).Msg("speak")
	return nil
}

func (s *LogSpeaker) CancelAll() {}

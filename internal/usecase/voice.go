package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mimitomo/internal/ports"
)

const (
	defaultSpeechRate = 0.9
	// speechLeadIn pads the start of every utterance.
	speechLeadIn = "　"
)

// Voice owns the speech output. Each new utterance cancels the one in flight.
type Voice struct {
	out  ports.SpeechOutput
	lang string
	rate float64
	log  zerolog.Logger

	mu      sync.Mutex
	enabled bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewVoice(out ports.SpeechOutput, lang string, rate float64, log zerolog.Logger) *Voice {
	if lang == "" {
		lang = DefaultLanguage
	}
	if rate <= 0 {
		rate = defaultSpeechRate
	}
	return &Voice{out: out, lang: lang, rate: rate, log: log, enabled: true}
}

// Say speaks text in the background after cancelling any current utterance.
func (v *Voice) Say(text string) {
	text = strings.TrimSpace(text)
	if text == "" || v.out == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.enabled {
		return
	}
	v.cancelLocked()

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	utterance := ports.Utterance{Text: speechLeadIn + text, Lang: v.lang, Rate: v.rate}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		defer cancel()
		if err := v.out.Speak(ctx, utterance); err != nil && !errors.Is(err, context.Canceled) {
			v.log.Warn().Err(err).Msg("speech output failed")
		}
	}()
}

// CancelAll stops the current utterance, if any.
func (v *Voice) CancelAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelLocked()
}

// SetEnabled toggles the speaker. Disabling cancels the current utterance.
func (v *Voice) SetEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled = enabled
	if !enabled {
		v.cancelLocked()
	}
}

func (v *Voice) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabled
}

// Close cancels speech and waits for playback goroutines to exit.
func (v *Voice) Close() {
	v.CancelAll()
	v.wg.Wait()
}

func (v *Voice) cancelLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	if v.out != nil {
		v.out.CancelAll()
	}
}

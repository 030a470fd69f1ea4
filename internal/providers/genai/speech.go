package genai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	oai "github.com/openai/openai-go"

	"mimitomo/internal/ports"
)

const (
	DefaultSpeechModel = "gpt-4o-mini-tts"
	DefaultVoice       = "nova"
	speechBaseURL      = "https://api.openai.com/v1/"
)

// SpeechConfig selects the text to speech endpoint.
type SpeechConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	Timeout    time.Duration
	MaxRetries int
}

// Synthesizer implements ports.SpeechSynthesizer with the audio/speech API.
type Synthesizer struct {
	client oai.Client
	model  string
	voice  string
}

func NewSynthesizer(cfg SpeechConfig) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = speechBaseURL
	}
	return &Synthesizer{
		client: oai.NewClient(requestOptions(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.MaxRetries)...),
		model:  cfg.Model,
		voice:  cfg.Voice,
	}
}

// Synthesize returns MP3 audio for the utterance.
func (s *Synthesizer) Synthesize(ctx context.Context, utterance ports.Utterance) ([]byte, error) {
	if strings.TrimSpace(utterance.Text) == "" {
		return nil, nil
	}

	params := oai.AudioSpeechNewParams{
		Input:          utterance.Text,
		Model:          oai.SpeechModel(s.model),
		Voice:          oai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if utterance.Rate > 0 {
		params.Speed = oai.Float(utterance.Rate)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("genai: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genai: read speech: %w", err)
	}
	return audio, nil
}

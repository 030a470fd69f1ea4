package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"mimitomo/internal/audio"
	"mimitomo/internal/blob"
	"mimitomo/internal/config"
	"mimitomo/internal/domain"
	"mimitomo/internal/observe"
	"mimitomo/internal/ports"
	"mimitomo/internal/providers/deepgram"
	"mimitomo/internal/providers/genai"
	"mimitomo/internal/recognizer"
	"mimitomo/internal/rules"
	"mimitomo/internal/store/postgres"
	"mimitomo/internal/store/sqlite"
	"mimitomo/internal/store/sqlstore"
	"mimitomo/internal/store/supabase"
	"mimitomo/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config config.Config
	Log    zerolog.Logger

	Store    ports.Store
	Objects  ports.ObjectStorage
	MediaDir string

	Registry      *prometheus.Registry
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *observe.Metrics

	Profiles     *usecase.Profiles
	Reminders    *usecase.Reminders
	Memories     *usecase.Memories
	Conversation *usecase.Conversation
	Voice        *usecase.Voice
	Shell        *usecase.Shell
}

// Options adjusts Build for a command.
type Options struct {
	// Migrate creates missing tables on SQL drivers. SQLite always migrates.
	Migrate bool
	// Engines overrides the microphone recognizer.
	Engines ports.RecognitionEngineFactory
	// Speech overrides the speech output.
	Speech ports.SpeechOutput
}

// Build wires all backend dependencies for the current runtime and makes sure
// the device owner has a profile.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger, events ports.EventSink, opts Options) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	provider, err := observe.InitProvider(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	metrics, err := observe.NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	store, objects, mediaDir, err := OpenStore(ctx, cfg, opts.Migrate)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	s := &Services{
		Config:        cfg,
		Log:           log,
		Store:         store,
		Objects:       objects,
		MediaDir:      mediaDir,
		Registry:      registry,
		MeterProvider: provider,
		Metrics:       metrics,
	}

	ai := genai.NewClient(genai.Config{
		APIKey:     cfg.GenAI.APIKey,
		BaseURL:    cfg.GenAI.BaseURL,
		Model:      cfg.GenAI.Model,
		Timeout:    cfg.GenAI.Timeout,
		MaxRetries: cfg.GenAI.MaxRetries,
	}, log.With().Str("component", "genai").Logger())

	speech := opts.Speech
	if speech == nil {
		speech = newSpeechOutput(cfg, log)
	}
	engines := opts.Engines
	if engines == nil {
		engines = newEngines(cfg, log)
	}

	s.Voice = usecase.NewVoice(speech, cfg.Speech.Language, cfg.TTS.Rate, log.With().Str("component", "voice").Logger())
	s.Profiles = usecase.NewProfiles(store, metrics)
	s.Reminders = usecase.NewReminders(store, ai, metrics)
	s.Memories = usecase.NewMemories(store, objects, nil, metrics, log.With().Str("component", "memories").Logger())
	s.Conversation = usecase.NewConversation(store, ai, s.Profiles, s.Voice, metrics, log.With().Str("component", "conversation").Logger())

	if _, err := s.Profiles.Ensure(ctx, domain.PlaceholderUser(cfg.UserID)); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("ensure user %s: %w", cfg.UserID, err)
	}

	s.Shell = usecase.NewShell(
		engines,
		rulesEngine,
		events,
		nil,
		cfg.UserID,
		log.With().Str("component", "shell").Logger(),
		[]usecase.ScreenConfig{
			usecase.HearingAidScreen(cfg.Speech.AmbientSilence, cfg.Speech.AutoStartDelay),
			usecase.ChatScreen(cfg.Speech.CommandSilence, s.Conversation, s.Voice, cfg.UserID),
			usecase.ReminderScreen(cfg.Speech.CommandSilence, s.Reminders, cfg.UserID),
		},
		usecase.WithSessionMetrics(metrics),
	)
	return s, nil
}

// Close releases sessions, speech output, the store and the meter provider.
func (s *Services) Close(ctx context.Context) error {
	if s.Shell != nil {
		s.Shell.Close()
	}
	if s.Voice != nil {
		s.Voice.Close()
	}
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.MeterProvider != nil {
		errs = append(errs, s.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// OpenStore opens the configured store and the object storage that goes with
// it. Supabase serves both; the SQL drivers store images on disk and return
// the media directory to serve.
func OpenStore(ctx context.Context, cfg config.Config, migrate bool) (ports.Store, ports.ObjectStorage, string, error) {
	switch cfg.Store.Driver {
	case config.DriverSupabase:
		store, err := supabase.New(supabase.Config{
			URL:    cfg.Store.SupabaseURL,
			Key:    cfg.Store.SupabaseKey,
			Bucket: cfg.Store.SupabaseBucket,
		})
		if err != nil {
			return nil, nil, "", err
		}
		return store, store, "", nil

	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, "", fmt.Errorf("open postgres: %w", err)
		}
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, nil, "", err
			}
		}
		return withLocalMedia(cfg, store)

	case config.DriverSQLite, "":
		store, err := sqlite.New(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, "", fmt.Errorf("open sqlite %s: %w", cfg.Store.SQLitePath, err)
		}
		return withLocalMedia(cfg, store)

	default:
		return nil, nil, "", fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func withLocalMedia(cfg config.Config, store *sqlstore.Store) (ports.Store, ports.ObjectStorage, string, error) {
	objects, err := blob.NewLocal(cfg.Store.MediaDir, cfg.Store.MediaBaseURL)
	if err != nil {
		_ = store.Close()
		return nil, nil, "", err
	}
	return store, objects, objects.Dir(), nil
}

func newEngines(cfg config.Config, log zerolog.Logger) ports.RecognitionEngineFactory {
	var provider ports.TranscriptionProvider
	deepgramProvider := deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Speech.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		Endpointing: cfg.Deepgram.Endpointing,
		KeepAlive:   cfg.Deepgram.KeepAlive,
	})
	if deepgramProvider.Configured() {
		provider = deepgramProvider
	} else {
		log.Warn().Msg("deepgram api key is not set; speech recognition is unavailable")
	}

	return recognizer.NewFactory(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		provider,
		recognizer.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
				Encoding:   "linear16",
				Language:   cfg.Speech.Language,
			},
			ChunkSize:       cfg.Audio.ChunkSize,
			StreamingGrace:  cfg.Speech.StreamingGrace,
			NoSpeechTimeout: cfg.Speech.NoSpeechTimeout,
		},
		log.With().Str("component", "recognizer").Logger(),
	)
}

func newSpeechOutput(cfg config.Config, log zerolog.Logger) ports.SpeechOutput {
	if !cfg.TTS.Enabled || strings.TrimSpace(cfg.TTS.APIKey) == "" {
		log.Info().Msg("speech synthesis is off; replies are logged instead of spoken")
		return audio.NewLogSpeaker(log.With().Str("component", "speaker").Logger())
	}
	return audio.NewSpeaker(
		genai.NewSynthesizer(genai.SpeechConfig{
			APIKey:  cfg.TTS.APIKey,
			BaseURL: cfg.TTS.BaseURL,
			Model:   cfg.TTS.Model,
			Voice:   cfg.TTS.Voice,
			Timeout: cfg.TTS.Timeout,
		}),
		audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand),
	)
}

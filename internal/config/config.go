package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. MIMITOMO_HTTP_ADDR.
const Prefix = "MIMITOMO"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

// Config stores runtime configuration for the companion.
type Config struct {
	UserID    string `envconfig:"USER_ID" default:"local-user"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	HTTP     HTTPConfig     `envconfig:"HTTP"`
	Store    StoreConfig    `envconfig:"STORE"`
	Deepgram DeepgramConfig `envconfig:"DEEPGRAM"`
	Audio    AudioConfig    `envconfig:"AUDIO"`
	Speech   SpeechConfig   `envconfig:"SPEECH"`
	GenAI    GenAIConfig    `envconfig:"GENAI"`
	TTS      TTSConfig      `envconfig:"TTS"`
	Rules    RulesConfig    `envconfig:"RULES"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS"`
}

type StoreConfig struct {
	Driver         string `envconfig:"DRIVER" default:"sqlite"`
	SQLitePath     string `envconfig:"SQLITE_PATH"`
	PostgresDSN    string `envconfig:"POSTGRES_DSN"`
	SupabaseURL    string `envconfig:"SUPABASE_URL"`
	SupabaseKey    string `envconfig:"SUPABASE_KEY"`
	SupabaseBucket string `envconfig:"SUPABASE_BUCKET" default:"memories"`
	MediaDir       string `envconfig:"MEDIA_DIR"`
	MediaBaseURL   string `envconfig:"MEDIA_BASE_URL" default:"/media"`
}

type DeepgramConfig struct {
	APIKey      string        `envconfig:"API_KEY"`
	APIBaseURL  string        `envconfig:"API_BASE" default:"https://api.deepgram.com/v1"`
	Model       string        `envconfig:"MODEL" default:"nova-2"`
	SmartFormat bool          `envconfig:"SMART_FORMAT" default:"true"`
	Endpointing time.Duration `envconfig:"ENDPOINTING" default:"300ms"`
	KeepAlive   time.Duration `envconfig:"KEEP_ALIVE" default:"5s"`
}

type AudioConfig struct {
	RecorderCommand string `envconfig:"FFMPEG_COMMAND" default:"ffmpeg"`
	PlayerCommand   string `envconfig:"FFPLAY_COMMAND" default:"ffplay"`
	InputFormat     string `envconfig:"INPUT_FORMAT" default:"pulse"`
	InputDevice     string `envconfig:"INPUT_DEVICE"`
	SampleRate      int    `envconfig:"SAMPLE_RATE" default:"16000"`
	Channels        int    `envconfig:"CHANNELS" default:"1"`
	ChunkSize       int    `envconfig:"CHUNK_SIZE" default:"4096"`
}

type SpeechConfig struct {
	Language        string        `envconfig:"LANGUAGE" default:"ja-JP"`
	AmbientSilence  time.Duration `envconfig:"AMBIENT_SILENCE" default:"20s"`
	CommandSilence  time.Duration `envconfig:"COMMAND_SILENCE" default:"1500ms"`
	AutoStartDelay  time.Duration `envconfig:"AUTO_START_DELAY" default:"500ms"`
	NoSpeechTimeout time.Duration `envconfig:"NO_SPEECH_TIMEOUT" default:"8s"`
	StreamingGrace  time.Duration `envconfig:"STREAMING_GRACE" default:"1s"`
}

type GenAIConfig struct {
	APIKey     string        `envconfig:"API_KEY"`
	BaseURL    string        `envconfig:"BASE_URL"`
	Model      string        `envconfig:"MODEL" default:"gemini-2.5-flash"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"0"`
}

type TTSConfig struct {
	Enabled bool          `envconfig:"ENABLED" default:"true"`
	APIKey  string        `envconfig:"API_KEY"`
	BaseURL string        `envconfig:"BASE_URL"`
	Model   string        `envconfig:"MODEL" default:"gpt-4o-mini-tts"`
	Voice   string        `envconfig:"VOICE" default:"nova"`
	Rate    float64       `envconfig:"RATE" default:"0.9"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

type RulesConfig struct {
	Path           string `envconfig:"FILE"`
	IterationLimit int    `envconfig:"ITERATION_LIMIT" default:"30"`
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg.Deepgram.APIKey = firstNonEmpty(cfg.Deepgram.APIKey, os.Getenv("DEEPGRAM_API_KEY"))
	cfg.GenAI.APIKey = firstNonEmpty(cfg.GenAI.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY"))
	cfg.TTS.APIKey = firstNonEmpty(cfg.TTS.APIKey, os.Getenv("OPENAI_API_KEY"))
	cfg.Audio.InputDevice = firstNonEmpty(cfg.Audio.InputDevice, os.Getenv("PULSE_SOURCE"), "default")

	if strings.TrimSpace(cfg.Rules.Path) == "" {
		cfg.Rules.Path = firstExisting(
			filepath.Join(home, ".config", "mimitomo", "corrections.yaml"),
			filepath.Join(home, ".config", "mimitomo", "corrections.yml"),
		)
	}

	dataDir := filepath.Join(home, ".local", "share", "mimitomo")
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = filepath.Join(dataDir, "mimitomo.db")
	}
	if cfg.Store.MediaDir == "" {
		cfg.Store.MediaDir = filepath.Join(dataDir, "media")
	}

	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFallbacks replaces out of range values with defaults.
func (c *Config) applyFallbacks() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.ChunkSize < 256 {
		c.Audio.ChunkSize = 4096
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = 30
	}
	if c.Speech.AmbientSilence <= 0 {
		c.Speech.AmbientSilence = 20 * time.Second
	}
	if c.Speech.CommandSilence <= 0 {
		c.Speech.CommandSilence = 1500 * time.Millisecond
	}
	if c.Speech.AutoStartDelay <= 0 {
		c.Speech.AutoStartDelay = 500 * time.Millisecond
	}
	if c.Speech.StreamingGrace < 0 {
		c.Speech.StreamingGrace = time.Second
	}
	if c.TTS.Rate <= 0 {
		c.TTS.Rate = 0.9
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
}

// Validate checks that the selected store driver has what it needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("MIMITOMO_USER_ID must not be blank")
	}
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("MIMITOMO_STORE_POSTGRES_DSN is required for the postgres driver")
		}
	case DriverSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			return errors.New("MIMITOMO_STORE_SUPABASE_URL and MIMITOMO_STORE_SUPABASE_KEY are required for the supabase driver")
		}
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	return nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

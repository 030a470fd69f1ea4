package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mimitomo/internal/audio"
	"mimitomo/internal/config"
	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
	"mimitomo/internal/recognizer"
	"mimitomo/internal/usecase"
)

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(string, domain.SessionState, domain.SessionStateReason) {}
func (noopEventSink) TranscriptChanged(string, domain.Transcript)                                {}
func (noopEventSink) TranscriptFinalized(string, string, string)                                 {}
func (noopEventSink) SessionError(string, domain.ErrorKind, string)                              {}
func (noopEventSink) ScreenBusy(string, bool)                                                    {}
func (noopEventSink) RecordsChanged(string, string)                                              {}

type silentOutput struct{}

func (silentOutput) Speak(context.Context, ports.Utterance) error { return nil }
func (silentOutput) CancelAll()                                   {}

type noEngines struct{}

func (noEngines) NewEngine() (ports.RecognitionEngine, error) {
	return nil, errors.New("no microphone")
}

func loadConfig(t *testing.T) config.Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MIMITOMO_STORE_SQLITE_PATH", filepath.Join(home, "data", "mimitomo.db"))
	t.Setenv("MIMITOMO_STORE_MEDIA_DIR", filepath.Join(home, "media"))
	t.Setenv("MIMITOMO_USER_ID", "owner")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestBuildSQLiteEnsuresOwner(t *testing.T) {
	cfg := loadConfig(t)
	ctx := context.Background()

	services, err := Build(ctx, cfg, zerolog.Nop(), noopEventSink{}, Options{Engines: noEngines{}, Speech: silentOutput{}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer func() {
		if err := services.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	}()

	user, err := services.Profiles.Load(ctx, "owner")
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	if user.DisplayName != "田中 克己" {
		t.Fatalf("expected placeholder owner, got %q", user.DisplayName)
	}
	if services.MediaDir != cfg.Store.MediaDir {
		t.Fatalf("unexpected media dir %q", services.MediaDir)
	}

	status, err := services.Shell.Enter(usecase.ScreenReminders)
	if err != nil {
		t.Fatalf("enter reminders: %v", err)
	}
	if status.Available {
		t.Fatalf("expected recognition to be unavailable")
	}
}

func TestBuildKeepsEditedProfile(t *testing.T) {
	cfg := loadConfig(t)
	ctx := context.Background()

	first, err := Build(ctx, cfg, zerolog.Nop(), noopEventSink{}, Options{Engines: noEngines{}, Speech: silentOutput{}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := first.Profiles.UpdateBasic(ctx, domain.User{ID: "owner", DisplayName: "山田 花子"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Build(ctx, cfg, zerolog.Nop(), noopEventSink{}, Options{Engines: noEngines{}, Speech: silentOutput{}})
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	defer second.Close(ctx)

	user, err := second.Profiles.Load(ctx, "owner")
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	if user.DisplayName != "山田 花子" {
		t.Fatalf("expected edited name to survive restart, got %q", user.DisplayName)
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	cfg := loadConfig(t)
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	if err := os.WriteFile(path, []byte("corrections:\n  - pattern: \"(\"\n    replace: x\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg.Rules.Path = path

	if _, err := Build(context.Background(), cfg, zerolog.Nop(), noopEventSink{}, Options{}); err == nil {
		t.Fatalf("expected invalid rules to fail the build")
	}
}

func TestBuildRejectsIncompleteSupabaseConfig(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Store.Driver = config.DriverSupabase
	cfg.Store.SupabaseURL = "https://example.supabase.co"

	_, err := Build(context.Background(), cfg, zerolog.Nop(), noopEventSink{}, Options{})
	if err == nil || !strings.Contains(err.Error(), "SUPABASE_KEY") {
		t.Fatalf("expected supabase validation error, got %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Store.Driver = "oracle"

	if _, _, _, err := OpenStore(context.Background(), cfg, true); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenStoreSupabaseServesObjects(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Store.Driver = config.DriverSupabase
	cfg.Store.SupabaseURL = "https://example.supabase.co"
	cfg.Store.SupabaseKey = "anon"

	store, objects, mediaDir, err := OpenStore(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("open supabase: %v", err)
	}
	defer store.Close()
	if objects == nil {
		t.Fatalf("expected supabase object storage")
	}
	if mediaDir != "" {
		t.Fatalf("expected no local media dir, got %q", mediaDir)
	}
}

func TestEnginesUnavailableWithoutDeepgramKey(t *testing.T) {
	cfg := loadConfig(t)

	_, err := newEngines(cfg, zerolog.Nop()).NewEngine()
	if !errors.Is(err, recognizer.ErrUnavailable) {
		t.Fatalf("expected unavailable engine, got %v", err)
	}
}

func TestSpeechOutputSelection(t *testing.T) {
	cfg := loadConfig(t)

	if _, ok := newSpeechOutput(cfg, zerolog.Nop()).(*audio.LogSpeaker); !ok {
		t.Fatalf("expected log speaker without a tts key")
	}

	cfg.TTS.APIKey = "sk-test"
	if _, ok := newSpeechOutput(cfg, zerolog.Nop()).(*audio.Speaker); !ok {
		t.Fatalf("expected synthesized speaker with a tts key")
	}

	cfg.TTS.Enabled = false
	if _, ok := newSpeechOutput(cfg, zerolog.Nop()).(*audio.LogSpeaker); !ok {
		t.Fatalf("expected log speaker when tts is disabled")
	}
}

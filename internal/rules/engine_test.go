package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCorrections(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write corrections file: %v", err)
	}
	return path
}

func TestEngineLiteralAndPatternRules(t *testing.T) {
	t.Parallel()

	path := writeCorrections(t, `
corrections:
  - from: みみ友
    to: ミミトモ
  - pattern: '(\d+)じ(\d+)ふん'
    replace: '${1}時${2}分'
    global: true
`)

	engine, err := NewEngine(path, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.Len() != 2 {
		t.Fatalf("expected two rules, got %d", engine.Len())
	}

	output, err := engine.Apply("みみ友、8じ30ふんに起こして")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "ミミトモ、8時30分に起こして" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineIteratesUntilStable(t *testing.T) {
	t.Parallel()

	engine, err := Compile([]Correction{{From: "a", To: "b"}, {From: "b", To: "c"}}, 5)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	output, err := engine.Apply("a")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "c" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineStopsAtLoopLimit(t *testing.T) {
	t.Parallel()

	engine, err := Compile([]Correction{{From: "a", To: "aa"}}, 3)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	output, _ := engine.Apply("a")
	if output != strings.Repeat("a", 8) {
		t.Fatalf("expected three doublings, got %q", output)
	}
}

func TestEnginePatternReplacesFirstMatchUnlessGlobal(t *testing.T) {
	t.Parallel()

	engine, err := Compile([]Correction{{Pattern: `えー+`, Replace: ""}}, 1)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	output, _ := engine.Apply("えーと、えーっと")
	if output != "と、えーっと" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineLiteralIsCaseInsensitiveByDefault(t *testing.T) {
	t.Parallel()

	engine, err := Compile([]Correction{
		{From: "line", To: "LINE"},
		{From: "Zoom", To: "ズーム", CaseSensitive: true},
	}, 0)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	output, _ := engine.Apply("Line と zoom と Zoom")
	if output != "LINE と zoom と ズーム" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(filepath.Join(t.TempDir(), "missing.yaml"), 0)
	if err != nil {
		t.Fatalf("expected missing file to be ignored: %v", err)
	}
	output, _ := engine.Apply("そのまま")
	if output != "そのまま" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineRejectsInvalidCorrections(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"both":       "corrections:\n  - from: a\n    pattern: b\n",
		"neither":    "corrections:\n  - to: a\n",
		"bad regex":  "corrections:\n  - pattern: '('\n",
		"not yaml":   "corrections: [",
		"blank from": "corrections:\n  - from: '  '\n",
	}
	for name, contents := range cases {
		if _, err := NewEngine(writeCorrections(t, contents), 0); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

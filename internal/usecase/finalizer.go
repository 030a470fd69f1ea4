package usecase

import (
	"github.com/rs/zerolog"

	"mimitomo/internal/ports"
)

type transcriptFinalizer struct {
	rules  ports.RulesEngine
	events ports.EventSink
	log    zerolog.Logger
}

func newTranscriptFinalizer(rules ports.RulesEngine, events ports.EventSink, log zerolog.Logger) transcriptFinalizer {
	return transcriptFinalizer{rules: rules, events: events, log: log}
}

// Finalize applies correction rules to raw and publishes the result. A rules
// failure falls back to the raw transcript.
func (f transcriptFinalizer) Finalize(session string, raw string) string {
	transformed := raw
	if f.rules != nil {
		out, err := f.rules.Apply(raw)
		if err != nil {
			f.log.Warn().Err(err).Str("session", session).Msg("transcript rules failed; using raw text")
		} else {
			transformed = out
		}
	}

	f.events.TranscriptFinalized(session, raw, transformed)
	return transformed
}

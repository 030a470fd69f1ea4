package usecase

import (
	"strings"

	"mimitomo/internal/domain"
)

// transcriptAggregator accumulates recognizer output for one session. It is
// owned by the controller goroutine.
type transcriptAggregator struct {
	finalized strings.Builder
	interim   string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add folds one recognition event in. Final results are appended to the
// committed text; interim text is rebuilt from this event alone.
func (a *transcriptAggregator) Add(event domain.RecognitionEvent) {
	start := event.ResultIndex
	if start < 0 {
		start = 0
	}

	var interim strings.Builder
	for i := start; i < len(event.Results); i++ {
		result := event.Results[i]
		if result.IsFinal {
			a.finalized.WriteString(result.Transcript)
			continue
		}
		interim.WriteString(result.Transcript)
	}
	a.interim = interim.String()
}

func (a *transcriptAggregator) Raw() string {
	return strings.TrimSpace(a.finalized.String())
}

func (a *transcriptAggregator) ClearInterim() {
	a.interim = ""
}

func (a *transcriptAggregator) Reset() {
	a.finalized.Reset()
	a.interim = ""
}

func (a *transcriptAggregator) Snapshot() domain.Transcript {
	return domain.Transcript{Finalized: a.finalized.String(), Interim: a.interim}
}

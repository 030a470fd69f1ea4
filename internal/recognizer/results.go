package recognizer

import (
	"strings"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// resultList turns provider transcript events into cumulative recognition
// events: committed finals followed by at most one interim result.
type resultList struct {
	finals []domain.RecognitionResult
}

func (l *resultList) add(event ports.TranscriptEvent) (domain.RecognitionEvent, bool) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return domain.RecognitionEvent{}, false
	}

	index := len(l.finals)
	result := domain.RecognitionResult{
		IsFinal:    event.Kind == ports.TranscriptKindFinal,
		Transcript: text,
		Confidence: event.Confidence,
	}

	results := make([]domain.RecognitionResult, 0, index+1)
	results = append(results, l.finals...)
	results = append(results, result)
	if result.IsFinal {
		l.finals = append(l.finals, result)
	}
	return domain.RecognitionEvent{ResultIndex: index, Results: results}, true
}

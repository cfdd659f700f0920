// Package turndetector implements agent.TurnDetector: an estimate of how
// likely a user has finished their conversational turn, used to widen the
// endpointing delay when the model-free VAD/STT signal alone is likely
// premature (spec §4.4).
package turndetector

import (
	"context"
	"strings"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// trailingWords that strongly suggest the user is mid-sentence, grounded on
// chriscow-livekit-agents-go's VoicePipeline.TurnDetectionSettings.Threshold
// knob (a single tunable probability threshold), generalized here into a
// lexical heuristic since this runtime has no server-side turn-detection
// model to call.
var trailingWords = map[string]bool{
	"and": true, "but": true, "or": true, "so": true, "because": true,
	"if": true, "when": true, "the": true, "a": true, "an": true,
	"to": true, "of": true, "with": true, "is": true, "was": true,
	"um": true, "uh": true, "like": true,
}

// Heuristic is a lexical end-of-turn estimator: text ending in terminal
// punctuation scores high (0.9); text ending on a conjunction/filler word
// scores low (0.15), a trailing comma 0.25, and any other ending 0.55.
type Heuristic struct {
	Languages []agent.Language // empty means "every language"
	Threshold float64
}

// NewHeuristic constructs a Heuristic with the given unlikely-threshold
// (spec §4.4's "low end-of-turn probability" comparison point).
func NewHeuristic(threshold float64, languages ...agent.Language) *Heuristic {
	return &Heuristic{Languages: languages, Threshold: threshold}
}

// SupportsLanguage implements agent.TurnDetector.
func (h *Heuristic) SupportsLanguage(lang agent.Language) bool {
	if len(h.Languages) == 0 {
		return true
	}
	for _, l := range h.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// UnlikelyThreshold implements agent.TurnDetector.
func (h *Heuristic) UnlikelyThreshold(lang agent.Language) (float64, bool) {
	if !h.SupportsLanguage(lang) {
		return 0, false
	}
	return h.Threshold, true
}

// PredictEndOfTurn implements agent.TurnDetector, scoring the most recent
// user item in items.
func (h *Heuristic) PredictEndOfTurn(ctx context.Context, items []agent.ChatItem) (float64, error) {
	text := lastUserText(items)
	if text == "" {
		return 1.0, nil // nothing pending: treat as complete
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 1.0, nil
	}

	last := rune(trimmed[len(trimmed)-1])
	if last == '.' || last == '!' || last == '?' {
		return 0.9, nil
	}

	words := strings.Fields(trimmed)
	if len(words) == 0 {
		return 0.5, nil
	}
	lastWord := strings.ToLower(strings.Trim(words[len(words)-1], ".,!?"))
	if trailingWords[lastWord] {
		return 0.15, nil
	}
	if last == ',' {
		return 0.25, nil
	}

	return 0.55, nil
}

func lastUserText(items []agent.ChatItem) string {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Role == agent.RoleUser {
			return items[i].Content
		}
	}
	return ""
}

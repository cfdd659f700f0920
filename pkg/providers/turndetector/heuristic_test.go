package turndetector

import (
	"context"
	"testing"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

func TestHeuristicCompleteSentenceScoresHigh(t *testing.T) {
	h := NewHeuristic(0.3, agent.LanguageEn)
	items := []agent.ChatItem{{Role: agent.RoleUser, Content: "what's the weather like today?"}}

	prob, err := h.PredictEndOfTurn(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prob < 0.3 {
		t.Fatalf("expected a complete question to score above threshold, got %f", prob)
	}
}

func TestHeuristicTrailingConjunctionScoresLow(t *testing.T) {
	h := NewHeuristic(0.3, agent.LanguageEn)
	items := []agent.ChatItem{{Role: agent.RoleUser, Content: "I wanted to ask you and"}}

	prob, err := h.PredictEndOfTurn(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	threshold, ok := h.UnlikelyThreshold(agent.LanguageEn)
	if !ok {
		t.Fatal("expected english to be supported")
	}
	if prob >= threshold {
		t.Fatalf("expected trailing conjunction to score below threshold %f, got %f", threshold, prob)
	}
}

func TestHeuristicLanguageFilter(t *testing.T) {
	h := NewHeuristic(0.3, agent.LanguageEn)
	if h.SupportsLanguage(agent.LanguageEs) {
		t.Fatal("expected Spanish to be unsupported for an english-only heuristic")
	}
	if _, ok := h.UnlikelyThreshold(agent.LanguageEs); ok {
		t.Fatal("expected UnlikelyThreshold to fail for unsupported language")
	}
}

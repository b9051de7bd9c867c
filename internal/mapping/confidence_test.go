package mapping

import "testing"

func TestConfidenceScoreExactMatch(t *testing.T) {
	if got := ConfidenceScore("Naruto", "naruto", nil); got != 1.0 {
		t.Fatalf("expected 1.0 for case-insensitive exact match, got %v", got)
	}
	if got := ConfidenceScore("  Cowboy Bebop  ", "cowboy bebop", nil); got != 1.0 {
		t.Fatalf("expected 1.0 after trimming, got %v", got)
	}
}

func TestConfidenceScoreContainment(t *testing.T) {
	if got := ConfidenceScore("Naruto: Shippuden", "Naruto", nil); got != 0.8 {
		t.Fatalf("expected 0.8 for containment, got %v", got)
	}
	// Containment works in both directions.
	if got := ConfidenceScore("Naruto", "Naruto: Shippuden", nil); got != 0.8 {
		t.Fatalf("expected 0.8 for reverse containment, got %v", got)
	}
}

func TestConfidenceScoreEmptyTitles(t *testing.T) {
	if got := ConfidenceScore("", "Naruto", nil); got != 0.0 {
		t.Fatalf("expected 0.0 for empty title, got %v", got)
	}
	if got := ConfidenceScore("Naruto", "   ", nil); got != 0.0 {
		t.Fatalf("expected 0.0 for blank title, got %v", got)
	}
}

func TestConfidenceScoreWordOverlap(t *testing.T) {
	// "attack on titan final" vs "shingeki titan final season":
	// intersection {titan, final} = 2, union = 6 -> 0.33.
	got := ConfidenceScore("attack on titan final", "shingeki titan final season", nil)
	if got != 0.33 {
		t.Fatalf("expected 0.33 jaccard score, got %v", got)
	}
}

func TestConfidenceScoreAuxFactors(t *testing.T) {
	base := ConfidenceScore("attack on titan final", "shingeki titan final season", nil)

	boosted := ConfidenceScore("attack on titan final", "shingeki titan final season",
		&AuxFactors{EpisodeCountMatch: true})
	if boosted != base+0.1 {
		t.Fatalf("episode match should add 0.1: base %v, boosted %v", base, boosted)
	}

	penalized := ConfidenceScore("attack on titan final", "shingeki titan final season",
		&AuxFactors{YearDifference: 6})
	if penalized != 0.13 {
		t.Fatalf("year gap over five should subtract 0.2, got %v", penalized)
	}

	// Small year differences are not penalized.
	same := ConfidenceScore("attack on titan final", "shingeki titan final season",
		&AuxFactors{YearDifference: 5})
	if same != base {
		t.Fatalf("year difference of 5 should not penalize: got %v, want %v", same, base)
	}
}

func TestConfidenceScoreAuxBounds(t *testing.T) {
	// The boost is capped at 1.0.
	got := ConfidenceScore("one piece film red", "one piece film red gold",
		&AuxFactors{EpisodeCountMatch: true})
	if got > 1.0 {
		t.Fatalf("score must not exceed 1.0, got %v", got)
	}

	// The penalty floors at 0.
	got = ConfidenceScore("alpha beta", "gamma delta", &AuxFactors{YearDifference: 10})
	if got != 0.0 {
		t.Fatalf("score must not go negative, got %v", got)
	}
}

func TestConfidenceScoreAuxDoesNotAffectExactMatch(t *testing.T) {
	got := ConfidenceScore("Monster", "Monster", &AuxFactors{YearDifference: 20})
	if got != 1.0 {
		t.Fatalf("aux factors apply only to the word-overlap path, got %v", got)
	}
}

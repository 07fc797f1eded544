package risk

import (
	"math"
	"testing"
)

func TestClassifyThresholds(t *testing.T) {
	tests := []struct {
		name         string
		score        float64
		expectedTier Tier
	}{
		{name: "well above high threshold", score: 95, expectedTier: TierHigh},
		{name: "exactly high threshold", score: 70, expectedTier: TierHigh},
		{name: "just below high threshold", score: 69.999, expectedTier: TierMedium},
		{name: "exactly medium threshold", score: 40, expectedTier: TierMedium},
		{name: "just below medium threshold", score: 39.999, expectedTier: TierLow},
		{name: "zero", score: 0, expectedTier: TierLow},
		{name: "maximum", score: 100, expectedTier: TierHigh},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			classification := Classify(test.score)
			if classification.Tier != test.expectedTier {
				t.Fatalf("score %v: expected tier %s, got %s", test.score, test.expectedTier, classification.Tier)
			}
		})
	}
}

func TestClassifyNaNFailsSafeToLow(t *testing.T) {
	classification := Classify(math.NaN())
	if classification.Tier != TierLow {
		t.Fatalf("expected NaN to classify as low, got %s", classification.Tier)
	}
	if classification.ColorClass != "green" {
		t.Fatalf("expected green color class, got %s", classification.ColorClass)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify(55)
	second := Classify(55)
	if first != second {
		t.Fatalf("expected identical classifications, got %#v and %#v", first, second)
	}
	if first.Label != "Medium Risk" {
		t.Fatalf("unexpected label %q", first.Label)
	}
}

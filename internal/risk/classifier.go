package risk

import "math"

// Tier is the discrete risk band derived from a 0-100 deterioration score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

const (
	highRiskThreshold   = 70.0
	mediumRiskThreshold = 40.0
)

// Classification carries the tier together with its display label and color
// class so the roster view and the alerts panel render risk identically.
type Classification struct {
	Tier       Tier
	Label      string
	ColorClass string
}

// Classify maps a risk score to its tier. Scores of 70 and above are high,
// 40 up to 70 medium, everything below low. NaN and negative placeholder
// values classify as low so an unknown score is never presented as high.
func Classify(score float64) Classification {
	switch {
	case math.IsNaN(score):
		return lowClassification()
	case score >= highRiskThreshold:
		return Classification{Tier: TierHigh, Label: "High Risk", ColorClass: "red"}
	case score >= mediumRiskThreshold:
		return Classification{Tier: TierMedium, Label: "Medium Risk", ColorClass: "yellow"}
	default:
		return lowClassification()
	}
}

func lowClassification() Classification {
	return Classification{Tier: TierLow, Label: "Low Risk", ColorClass: "green"}
}

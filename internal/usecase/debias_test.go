package usecase

import (
	"testing"

	"tabula/internal/domain"
)

func allMetrics(v float64) domain.SourceAssessment {
	return domain.SourceAssessment{
		Domain:                      "example.org",
		Independence:                v,
		PerspectiveDiversity:        v,
		SelectionBiasResistance:     v,
		QuantificationBiasAwareness: v,
		IdeologicalTransparency:     v,
		FundingTransparency:         v,
		ConflictDisclosure:          v,
		GeographicNeutrality:        v,
		TemporalNeutrality:          v,
		FactualAccuracy:             v,
		MethodologicalRigor:         v,
		Transparency:                v,
	}
}

func TestDebiasWeightsSumToOne(t *testing.T) {
	var sum int64
	for _, w := range debiasWeights {
		sum += w.hundredths
	}
	if sum != 100 {
		t.Fatalf("debias weights sum to %d hundredths, want 100", sum)
	}
	credibility := int64(credibilityFactualAccuracy + credibilityMethodologicalRigor +
		credibilityTransparency + credibilityDebiasedScore)
	if credibility != 100 {
		t.Fatalf("credibility weights sum to %d hundredths, want 100", credibility)
	}
}

func TestDebiasScoreExtremes(t *testing.T) {
	if got := DebiasedScore(allMetrics(1.0)); got != 1.0 {
		t.Fatalf("all-ones debiased score = %v, want exactly 1.0", got)
	}
	if got := DebiasedScore(allMetrics(0.0)); got != 0.0 {
		t.Fatalf("all-zeros debiased score = %v, want exactly 0.0", got)
	}
	if got := OverallCredibility(allMetrics(1.0)); got != 1.0 {
		t.Fatalf("all-ones credibility = %v, want exactly 1.0", got)
	}
	if got := OverallCredibility(allMetrics(0.0)); got != 0.0 {
		t.Fatalf("all-zeros credibility = %v, want exactly 0.0", got)
	}
}

func TestDebiasScoreWeighting(t *testing.T) {
	// Only independence set: score is its weight.
	a := domain.SourceAssessment{Independence: 1.0}
	if got := DebiasedScore(a); got != 0.30 {
		t.Fatalf("independence-only score = %v, want 0.30", got)
	}

	// Only factual accuracy set: credibility is its weight.
	c := domain.SourceAssessment{FactualAccuracy: 1.0}
	if got := OverallCredibility(c); got != 0.35 {
		t.Fatalf("accuracy-only credibility = %v, want 0.35", got)
	}
}

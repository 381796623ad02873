package usecase

import "tabula/internal/domain"

// Score weights are integer hundredths so the tables sum to exactly 100
// and all-ones input scores exactly 1.0. The weighting itself is fixed;
// what varies per deployment is the assessed metrics, not the formula.

type weightedMetric struct {
	name       string
	hundredths int64
	value      func(domain.SourceAssessment) float64
}

var debiasWeights = []weightedMetric{
	{"independence", 30, func(a domain.SourceAssessment) float64 { return a.Independence }},
	{"perspectiveDiversity", 15, func(a domain.SourceAssessment) float64 { return a.PerspectiveDiversity }},
	{"selectionBiasResistance", 10, func(a domain.SourceAssessment) float64 { return a.SelectionBiasResistance }},
	{"quantificationBiasAwareness", 10, func(a domain.SourceAssessment) float64 { return a.QuantificationBiasAwareness }},
	{"ideologicalTransparency", 10, func(a domain.SourceAssessment) float64 { return a.IdeologicalTransparency }},
	{"fundingTransparency", 8, func(a domain.SourceAssessment) float64 { return a.FundingTransparency }},
	{"conflictDisclosure", 7, func(a domain.SourceAssessment) float64 { return a.ConflictDisclosure }},
	{"geographicNeutrality", 5, func(a domain.SourceAssessment) float64 { return a.GeographicNeutrality }},
	{"temporalNeutrality", 5, func(a domain.SourceAssessment) float64 { return a.TemporalNeutrality }},
}

const (
	credibilityFactualAccuracy     = 35
	credibilityMethodologicalRigor = 25
	credibilityTransparency        = 15
	credibilityDebiasedScore       = 25
)

// DebiasedScore is the weighted anti-bias composite over the nine
// independently assessed 0..1 metrics.
func DebiasedScore(a domain.SourceAssessment) float64 {
	var sum float64
	for _, w := range debiasWeights {
		sum += float64(w.hundredths) * w.value(a)
	}
	return sum / 100
}

// OverallCredibility folds the debiased score into the top-level
// credibility composite.
func OverallCredibility(a domain.SourceAssessment) float64 {
	sum := credibilityFactualAccuracy*a.FactualAccuracy +
		credibilityMethodologicalRigor*a.MethodologicalRigor +
		credibilityTransparency*a.Transparency +
		credibilityDebiasedScore*DebiasedScore(a)
	return sum / 100
}

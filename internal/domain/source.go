package domain

import "time"

type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type FetchOutcome string

const (
	FetchSuccess FetchOutcome = "success"
	FetchFailure FetchOutcome = "failure"
)

func ParseFetchOutcome(s string) (FetchOutcome, bool) {
	switch o := FetchOutcome(s); o {
	case FetchSuccess, FetchFailure:
		return o, true
	}
	return "", false
}

// Failure classifications used in SourceHealth.ErrorsByType. The set is
// advisory; collaborators may append classes of their own.
const (
	ErrClassTimeout = "timeout"
	ErrClassDNS     = "dns"
	ErrClassHTTP4xx = "http_4xx"
	ErrClassHTTP5xx = "http_5xx"
	ErrClassParse   = "parse"
	ErrClassOther   = "other"
)

// SourceFetch is one row of the append-only fetch log.
type SourceFetch struct {
	ID         int64
	Domain     string
	Outcome    FetchOutcome
	LatencyMs  float64
	ErrorClass string
	FetchedAt  time.Time
}

// LatencySummary is computed over successful fetches only.
type LatencySummary struct {
	MeanMs float64 `json:"meanMs"`
	P95Ms  float64 `json:"p95Ms"`
	MinMs  float64 `json:"minMs"`
	MaxMs  float64 `json:"maxMs"`
}

// SourceHealth is the rolling-window reliability state of one domain.
// SuccessRate and Latency are nil when the window holds no data to derive
// them from. StatusSince tracks when the current status was entered, which
// drives the degraded grace period of the alert hysteresis.
type SourceHealth struct {
	Domain            string
	TotalFetches      int64
	SuccessfulFetches int64
	FailedFetches     int64
	SuccessRate       *float64
	Latency           *LatencySummary
	ErrorsByType      map[string]int64
	HealthStatus      HealthStatus
	StatusSince       time.Time
	AlertActive       bool
	AlertReason       string
	AlertSince        *time.Time
	WindowStartAt     time.Time
	WindowDays        int
	LastFetchAt       *time.Time
	LastCalculatedAt  time.Time
}

// HealthSnapshot is one point-in-time history row for trend analysis.
type HealthSnapshot struct {
	Domain       string
	SuccessRate  *float64
	HealthStatus HealthStatus
	RecordedAt   time.Time
}

// SourceAssessment carries the manually or automatically assessed 0..1
// metrics a domain is scored on. Scores derived from it are pure functions
// and never stored.
type SourceAssessment struct {
	Domain                      string
	Independence                float64
	PerspectiveDiversity        float64
	SelectionBiasResistance     float64
	QuantificationBiasAwareness float64
	IdeologicalTransparency     float64
	FundingTransparency         float64
	ConflictDisclosure          float64
	GeographicNeutrality        float64
	TemporalNeutrality          float64
	FactualAccuracy             float64
	MethodologicalRigor         float64
	Transparency                float64
	UpdatedAt                   time.Time
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tabula/internal/domain"
)

// TrustConfig carries the tunable policy knobs of the trust engine.
// Thresholds are configuration, not constants; operators tune alert
// sensitivity per deployment.
type TrustConfig struct {
	HealthyMinRate   float64
	DegradedMinRate  float64
	MinSamples       int
	WindowDays       int
	DegradedGrace    time.Duration
	BatchConcurrency int
	HistoryEnabled   bool
}

// TrustEngine aggregates the append-only fetch log into per-domain
// health state, raises and clears alerts with hysteresis, and derives
// anti-bias scores from stored assessments.
type TrustEngine struct {
	Fetches     FetchLogRepository
	Health      SourceHealthRepository
	Assessments AssessmentRepository
	Events      EventPublisher
	Cfg         TrustConfig
	Log         *slog.Logger
	Clock       func() time.Time
}

type AppendFetchRequest struct {
	Domain     string
	Outcome    domain.FetchOutcome
	LatencyMs  float64
	ErrorClass string
}

type BatchSummary struct {
	DomainsProcessed int
	DomainsFailed    int
	AlertsRaised     int
	AlertsCleared    int
	ByStatus         map[domain.HealthStatus]int
}

type SourceScore struct {
	Domain             string
	DebiasedScore      float64
	OverallCredibility float64
	AssessedAt         time.Time
}

// AppendFetch records one fetch attempt. The log is append-only; health
// only moves when a recalculation runs.
func (e *TrustEngine) AppendFetch(ctx context.Context, req AppendFetchRequest) error {
	if req.Domain == "" {
		return fmt.Errorf("%w: domain is required", domain.ErrValidationFailed)
	}
	if _, ok := domain.ParseFetchOutcome(string(req.Outcome)); !ok {
		return fmt.Errorf("%w: unknown outcome %q", domain.ErrValidationFailed, req.Outcome)
	}
	if req.LatencyMs < 0 {
		return fmt.Errorf("%w: latency must not be negative", domain.ErrValidationFailed)
	}
	errorClass := req.ErrorClass
	switch req.Outcome {
	case domain.FetchSuccess:
		errorClass = ""
	case domain.FetchFailure:
		if errorClass == "" {
			errorClass = domain.ErrClassOther
		}
	}
	return e.Fetches.Append(ctx, domain.SourceFetch{
		Domain:     req.Domain,
		Outcome:    req.Outcome,
		LatencyMs:  req.LatencyMs,
		ErrorClass: errorClass,
		FetchedAt:  e.now(),
	})
}

// Recalculate recomputes the rolling-window health of one domain and
// persists it. A windowDays of zero or less uses the configured window.
func (e *TrustEngine) Recalculate(ctx context.Context, sourceDomain string, windowDays int) (domain.SourceHealth, error) {
	health, _, err := e.recalculate(ctx, sourceDomain, windowDays)
	return health, err
}

// RecalculateAll recomputes every domain with in-window activity, with
// bounded parallelism. Per-domain failures are logged and counted in
// the summary; they never abort the batch.
func (e *TrustEngine) RecalculateAll(ctx context.Context, windowDays int) (BatchSummary, error) {
	if windowDays <= 0 {
		windowDays = e.Cfg.WindowDays
	}
	now := e.now()
	domains, err := e.Fetches.ActiveDomains(ctx, now.AddDate(0, 0, -windowDays))
	if err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{ByStatus: make(map[domain.HealthStatus]int)}
	var mu sync.Mutex

	var g errgroup.Group
	limit := e.Cfg.BatchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, sourceDomain := range domains {
		g.Go(func() error {
			health, alertDelta, err := e.recalculate(ctx, sourceDomain, windowDays)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.DomainsFailed++
				e.logger().Error("health recalculation failed", "domain", sourceDomain, "error", err)
				return nil
			}
			summary.DomainsProcessed++
			summary.ByStatus[health.HealthStatus]++
			switch {
			case alertDelta > 0:
				summary.AlertsRaised++
			case alertDelta < 0:
				summary.AlertsCleared++
			}
			return nil
		})
	}
	_ = g.Wait()
	return summary, nil
}

// GetHealth returns the last persisted health state for a domain.
func (e *TrustEngine) GetHealth(ctx context.Context, sourceDomain string) (domain.SourceHealth, error) {
	return e.Health.Get(ctx, sourceDomain)
}

// History returns recent health snapshots, newest first.
func (e *TrustEngine) History(ctx context.Context, sourceDomain string, limit int) ([]domain.HealthSnapshot, error) {
	return e.Health.History(ctx, sourceDomain, limit)
}

// UpsertAssessment stores the 0..1 bias metrics a domain is scored on.
func (e *TrustEngine) UpsertAssessment(ctx context.Context, assessment domain.SourceAssessment) error {
	if assessment.Domain == "" {
		return fmt.Errorf("%w: domain is required", domain.ErrValidationFailed)
	}
	for name, value := range assessmentMetrics(assessment) {
		if value < 0 || value > 1 {
			return fmt.Errorf("%w: %s must be within [0,1]", domain.ErrValidationFailed, name)
		}
	}
	assessment.UpdatedAt = e.now()
	return e.Assessments.Upsert(ctx, assessment)
}

// Score derives the debiased and overall-credibility scores for a
// domain from its stored assessment. Scores are computed fresh on
// every call and never cached.
func (e *TrustEngine) Score(ctx context.Context, sourceDomain string) (SourceScore, error) {
	assessment, err := e.Assessments.Get(ctx, sourceDomain)
	if err != nil {
		return SourceScore{}, err
	}
	return SourceScore{
		Domain:             sourceDomain,
		DebiasedScore:      DebiasedScore(assessment),
		OverallCredibility: OverallCredibility(assessment),
		AssessedAt:         assessment.UpdatedAt,
	}, nil
}

// recalculate returns the new health plus an alert delta: +1 when this
// pass raised the alert, -1 when it cleared it, 0 otherwise.
func (e *TrustEngine) recalculate(ctx context.Context, sourceDomain string, windowDays int) (domain.SourceHealth, int, error) {
	if sourceDomain == "" {
		return domain.SourceHealth{}, 0, fmt.Errorf("%w: domain is required", domain.ErrValidationFailed)
	}
	if windowDays <= 0 {
		windowDays = e.Cfg.WindowDays
	}
	now := e.now()
	windowStart := now.AddDate(0, 0, -windowDays)

	rows, err := e.Fetches.ListWindow(ctx, sourceDomain, windowStart, now)
	if err != nil {
		return domain.SourceHealth{}, 0, err
	}

	prior, err := e.Health.Get(ctx, sourceDomain)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.SourceHealth{}, 0, err
	}
	priorStatus := domain.HealthUnknown
	if hadPrior {
		priorStatus = prior.HealthStatus
	}

	health := domain.SourceHealth{
		Domain:           sourceDomain,
		WindowStartAt:    windowStart,
		WindowDays:       windowDays,
		LastCalculatedAt: now,
		ErrorsByType:     make(map[string]int64),
	}

	var successLatencies []float64
	for _, row := range rows {
		health.TotalFetches++
		if health.LastFetchAt == nil || row.FetchedAt.After(*health.LastFetchAt) {
			at := row.FetchedAt
			health.LastFetchAt = &at
		}
		switch row.Outcome {
		case domain.FetchSuccess:
			health.SuccessfulFetches++
			successLatencies = append(successLatencies, row.LatencyMs)
		default:
			health.FailedFetches++
			class := row.ErrorClass
			if class == "" {
				class = domain.ErrClassOther
			}
			health.ErrorsByType[class]++
		}
	}
	if health.TotalFetches > 0 {
		rate := float64(health.SuccessfulFetches) / float64(health.TotalFetches)
		health.SuccessRate = &rate
	}
	health.Latency = latencySummary(successLatencies)
	health.HealthStatus = e.classify(health.TotalFetches, health.SuccessRate)

	if health.HealthStatus == priorStatus && hadPrior {
		health.StatusSince = prior.StatusSince
	} else {
		health.StatusSince = now
	}

	alertDelta := e.applyAlertPolicy(&health, prior, hadPrior, now)

	if err := e.Health.Upsert(ctx, health); err != nil {
		return domain.SourceHealth{}, 0, err
	}

	// History is additive; a snapshot failure must not fail the
	// recalculation that produced the health row.
	if e.Cfg.HistoryEnabled {
		snap := domain.HealthSnapshot{
			Domain:       sourceDomain,
			SuccessRate:  health.SuccessRate,
			HealthStatus: health.HealthStatus,
			RecordedAt:   now,
		}
		if err := e.Health.AppendSnapshot(ctx, snap); err != nil {
			e.logger().Warn("health snapshot append failed", "domain", sourceDomain, "error", err)
		}
	}

	if health.HealthStatus != priorStatus {
		e.publishTransition(priorStatus, health)
	}
	return health, alertDelta, nil
}

func (e *TrustEngine) classify(total int64, rate *float64) domain.HealthStatus {
	if total < int64(e.Cfg.MinSamples) || rate == nil {
		return domain.HealthUnknown
	}
	switch {
	case *rate >= e.Cfg.HealthyMinRate:
		return domain.HealthHealthy
	case *rate >= e.Cfg.DegradedMinRate:
		return domain.HealthDegraded
	default:
		return domain.HealthUnhealthy
	}
}

// applyAlertPolicy carries the prior alert state forward and mutates it
// only when the health crosses an alert boundary: raise on entering
// unhealthy (or degraded sustained past the grace period) from a
// non-alerting state, clear on returning to healthy.
func (e *TrustEngine) applyAlertPolicy(health *domain.SourceHealth, prior domain.SourceHealth, hadPrior bool, now time.Time) int {
	if hadPrior {
		health.AlertActive = prior.AlertActive
		health.AlertReason = prior.AlertReason
		health.AlertSince = prior.AlertSince
	}

	switch health.HealthStatus {
	case domain.HealthHealthy:
		if health.AlertActive {
			health.AlertActive = false
			health.AlertReason = ""
			health.AlertSince = nil
			return -1
		}
	case domain.HealthUnhealthy:
		if !health.AlertActive {
			e.raiseAlert(health, now, fmt.Sprintf("success rate %s below %.2f", rateString(health.SuccessRate), e.Cfg.DegradedMinRate))
			return 1
		}
	case domain.HealthDegraded:
		if !health.AlertActive && now.Sub(health.StatusSince) >= e.Cfg.DegradedGrace {
			e.raiseAlert(health, now, fmt.Sprintf("degraded beyond grace period, success rate %s", rateString(health.SuccessRate)))
			return 1
		}
	}
	return 0
}

func (e *TrustEngine) raiseAlert(health *domain.SourceHealth, now time.Time, reason string) {
	health.AlertActive = true
	health.AlertReason = reason
	at := now
	health.AlertSince = &at
}

func (e *TrustEngine) publishTransition(from domain.HealthStatus, health domain.SourceHealth) {
	if e.Events == nil {
		return
	}
	payload := map[string]any{
		"domain":         health.Domain,
		"previousStatus": string(from),
		"status":         string(health.HealthStatus),
		"alertActive":    health.AlertActive,
	}
	if health.SuccessRate != nil {
		payload["successRate"] = *health.SuccessRate
	}
	e.Events.Publish(domain.EventSourceHealthChanged, payload)
}

// latencySummary computes mean, nearest-rank p95, min, and max. It
// returns nil when there are no successful fetches to summarize.
func latencySummary(latencies []float64) *domain.LatencySummary {
	n := len(latencies)
	if n == 0 {
		return nil
	}
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	rank := int(math.Ceil(0.95 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	return &domain.LatencySummary{
		MeanMs: sum / float64(n),
		P95Ms:  sorted[rank-1],
		MinMs:  sorted[0],
		MaxMs:  sorted[n-1],
	}
}

func assessmentMetrics(a domain.SourceAssessment) map[string]float64 {
	return map[string]float64{
		"independence":                a.Independence,
		"perspectiveDiversity":        a.PerspectiveDiversity,
		"selectionBiasResistance":     a.SelectionBiasResistance,
		"quantificationBiasAwareness": a.QuantificationBiasAwareness,
		"ideologicalTransparency":     a.IdeologicalTransparency,
		"fundingTransparency":         a.FundingTransparency,
		"conflictDisclosure":          a.ConflictDisclosure,
		"geographicNeutrality":        a.GeographicNeutrality,
		"temporalNeutrality":          a.TemporalNeutrality,
		"factualAccuracy":             a.FactualAccuracy,
		"methodologicalRigor":         a.MethodologicalRigor,
		"transparency":                a.Transparency,
	}
}

func rateString(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *rate)
}

func (e *TrustEngine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return time.Now().UTC()
}

func (e *TrustEngine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

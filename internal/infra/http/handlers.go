package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tabula/internal/domain"
	"tabula/internal/usecase"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type createRecordRequest struct {
	Payload map[string]any `json:"payload"`
	Status  string         `json:"status,omitempty"`
	Author  string         `json:"author"`
}

type updateRecordRequest struct {
	Patch  map[string]any `json:"patch"`
	Status *string        `json:"status,omitempty"`
	Author string         `json:"author"`
}

type verificationResponse struct {
	HashValid      bool `json:"hashValid"`
	SignatureValid bool `json:"signatureValid"`
}

type recordResponse struct {
	ID              string                `json:"id"`
	Kind            string                `json:"kind"`
	Version         int64                 `json:"version"`
	Status          string                `json:"status"`
	Author          string                `json:"author"`
	AuthorSignature string                `json:"authorSignature"`
	ContentHash     string                `json:"contentHash"`
	ParentHash      string                `json:"parentHash,omitempty"`
	Payload         map[string]any        `json:"payload"`
	CreatedAt       string                `json:"createdAt"`
	UpdatedAt       string                `json:"updatedAt"`
	Verification    *verificationResponse `json:"verification,omitempty"`
}

type chainFailureResponse struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason"`
}

type chainReportResponse struct {
	RecordID string                 `json:"recordId"`
	Kind     string                 `json:"kind"`
	Versions int                    `json:"versions"`
	Valid    bool                   `json:"valid"`
	Failures []chainFailureResponse `json:"failures"`
}

type registerActorRequest struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
}

type actorResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
	PublicKey   string `json:"publicKey"`
	CreatedAt   string `json:"createdAt"`
}

type registeredActorResponse struct {
	actorResponse
	SeedHex string `json:"seedHex"`
}

type appendFetchRequest struct {
	Domain     string  `json:"domain"`
	Outcome    string  `json:"outcome"`
	LatencyMs  float64 `json:"latencyMs"`
	ErrorClass string  `json:"errorClass,omitempty"`
}

type sourceHealthResponse struct {
	Domain            string                 `json:"domain"`
	TotalFetches      int64                  `json:"totalFetches"`
	SuccessfulFetches int64                  `json:"successfulFetches"`
	FailedFetches     int64                  `json:"failedFetches"`
	SuccessRate       *float64               `json:"successRate"`
	Latency           *domain.LatencySummary `json:"latency,omitempty"`
	ErrorsByType      map[string]int64       `json:"errorsByType"`
	HealthStatus      string                 `json:"healthStatus"`
	StatusSince       string                 `json:"statusSince"`
	AlertActive       bool                   `json:"alertActive"`
	AlertReason       string                 `json:"alertReason,omitempty"`
	AlertSince        string                 `json:"alertSince,omitempty"`
	WindowStartAt     string                 `json:"windowStartAt"`
	WindowDays        int                    `json:"windowDays"`
	LastFetchAt       string                 `json:"lastFetchAt,omitempty"`
	LastCalculatedAt  string                 `json:"lastCalculatedAt"`
}

type healthSnapshotResponse struct {
	Domain       string   `json:"domain"`
	SuccessRate  *float64 `json:"successRate"`
	HealthStatus string   `json:"healthStatus"`
	RecordedAt   string   `json:"recordedAt"`
}

type batchSummaryResponse struct {
	DomainsProcessed int            `json:"domainsProcessed"`
	DomainsFailed    int            `json:"domainsFailed"`
	AlertsRaised     int            `json:"alertsRaised"`
	AlertsCleared    int            `json:"alertsCleared"`
	ByStatus         map[string]int `json:"byStatus"`
}

type assessmentRequest struct {
	Independence                float64 `json:"independence"`
	PerspectiveDiversity        float64 `json:"perspectiveDiversity"`
	SelectionBiasResistance     float64 `json:"selectionBiasResistance"`
	QuantificationBiasAwareness float64 `json:"quantificationBiasAwareness"`
	IdeologicalTransparency     float64 `json:"ideologicalTransparency"`
	FundingTransparency         float64 `json:"fundingTransparency"`
	ConflictDisclosure          float64 `json:"conflictDisclosure"`
	GeographicNeutrality        float64 `json:"geographicNeutrality"`
	TemporalNeutrality          float64 `json:"temporalNeutrality"`
	FactualAccuracy             float64 `json:"factualAccuracy"`
	MethodologicalRigor         float64 `json:"methodologicalRigor"`
	Transparency                float64 `json:"transparency"`
}

type sourceScoreResponse struct {
	Domain             string  `json:"domain"`
	DebiasedScore      float64 `json:"debiasedScore"`
	OverallCredibility float64 `json:"overallCredibility"`
	AssessedAt         string  `json:"assessedAt"`
}

func (s *Server) handleCreateRecord(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !s.enforceRateLimit(c, routeRecordsCreate, req.Author) {
		return
	}
	rec, err := s.ledger.Create(c.Request.Context(), usecase.CreateRequest{
		Kind:    domain.RecordKind(c.Param("kind")),
		Payload: req.Payload,
		Status:  domain.RecordStatus(req.Status),
		Author:  req.Author,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildRecordResponse(rec))
}

func (s *Server) handleGetRecord(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	kind := domain.RecordKind(c.Param("kind"))
	rec, err := s.ledger.Get(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := buildRecordResponse(rec)
	if wantsVerification(c.Query("verify")) {
		verification, err := s.ledger.Verify(c.Request.Context(), rec)
		if err != nil {
			writeError(c, err)
			return
		}
		out.Verification = &verificationResponse{
			HashValid:      verification.HashValid,
			SignatureValid: verification.SignatureValid,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpdateRecord(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !s.enforceRateLimit(c, routeRecordsUpdate, req.Author) {
		return
	}
	var status *domain.RecordStatus
	if req.Status != nil {
		st := domain.RecordStatus(*req.Status)
		status = &st
	}
	rec, err := s.ledger.Update(c.Request.Context(), usecase.UpdateRequest{
		Kind:   domain.RecordKind(c.Param("kind")),
		ID:     c.Param("id"),
		Patch:  req.Patch,
		Status: status,
		Author: req.Author,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildRecordResponse(rec))
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	kind := domain.RecordKind(c.Param("kind"))
	if err := s.ledger.Delete(c.Request.Context(), kind, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRecordChain(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	kind := domain.RecordKind(c.Param("kind"))
	report, err := s.ledger.VerifyChain(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	failures := make([]chainFailureResponse, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, chainFailureResponse{Version: f.Version, Reason: f.Reason})
	}
	c.JSON(http.StatusOK, chainReportResponse{
		RecordID: report.RecordID,
		Kind:     string(report.Kind),
		Versions: report.Versions,
		Valid:    report.Valid,
		Failures: failures,
	})
}

func (s *Server) handleRegisterActor(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.registry == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req registerActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	registered, err := s.registry.Register(c.Request.Context(), usecase.RegisterActorRequest{
		Type:        domain.ActorType(req.Type),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	// The seed appears in this response and nowhere else.
	c.JSON(http.StatusOK, registeredActorResponse{
		actorResponse: buildActorResponse(registered.Actor),
		SeedHex:       registered.SeedHex,
	})
}

func (s *Server) handleGetActor(c *gin.Context) {
	if s.registry == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, err := s.registry.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildActorResponse(actor))
}

func (s *Server) handleAppendFetch(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req appendFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !s.enforceRateLimit(c, routeFetchesAppend, "") {
		return
	}
	err := s.trust.AppendFetch(c.Request.Context(), usecase.AppendFetchRequest{
		Domain:     req.Domain,
		Outcome:    domain.FetchOutcome(req.Outcome),
		LatencyMs:  req.LatencyMs,
		ErrorClass: req.ErrorClass,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSourceHealth(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	health, err := s.trust.GetHealth(c.Request.Context(), c.Param("domain"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildHealthResponse(health))
}

func (s *Server) handleSourceHealthHistory(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be a positive integer")
		return
	}
	snaps, err := s.trust.History(c.Request.Context(), c.Param("domain"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]healthSnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, healthSnapshotResponse{
			Domain:       snap.Domain,
			SuccessRate:  snap.SuccessRate,
			HealthStatus: string(snap.HealthStatus),
			RecordedAt:   formatTime(snap.RecordedAt),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSourceScore(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	score, err := s.trust.Score(c.Request.Context(), c.Param("domain"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sourceScoreResponse{
		Domain:             score.Domain,
		DebiasedScore:      score.DebiasedScore,
		OverallCredibility: score.OverallCredibility,
		AssessedAt:         formatTime(score.AssessedAt),
	})
}

func (s *Server) handleUpsertAssessment(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if !s.enforceRateLimit(c, routeAssessmentPut, "") {
		return
	}
	err := s.trust.UpsertAssessment(c.Request.Context(), domain.SourceAssessment{
		Domain:                      c.Param("domain"),
		Independence:                req.Independence,
		PerspectiveDiversity:        req.PerspectiveDiversity,
		SelectionBiasResistance:     req.SelectionBiasResistance,
		QuantificationBiasAwareness: req.QuantificationBiasAwareness,
		IdeologicalTransparency:     req.IdeologicalTransparency,
		FundingTransparency:         req.FundingTransparency,
		ConflictDisclosure:          req.ConflictDisclosure,
		GeographicNeutrality:        req.GeographicNeutrality,
		TemporalNeutrality:          req.TemporalNeutrality,
		FactualAccuracy:             req.FactualAccuracy,
		MethodologicalRigor:         req.MethodologicalRigor,
		Transparency:                req.Transparency,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSourceHealthAction dispatches POST /v1/sources/:domain/health:<action>.
// Gin cannot route a colon mid-segment, so the whole segment arrives as one
// param and is split here.
func (s *Server) handleSourceHealthAction(c *gin.Context) {
	segment := c.Param("health_action")
	parts := strings.SplitN(segment, ":", 2)
	if len(parts) != 2 || parts[0] != "health" {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown action")
		return
	}
	switch parts[1] {
	case "recalculate":
		s.handleRecalculate(c)
	default:
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown action")
	}
}

func (s *Server) handleRecalculate(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	windowDays, ok := windowDaysQuery(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeHealthRecalc, "") {
		return
	}
	health, err := s.trust.Recalculate(c.Request.Context(), c.Param("domain"), windowDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildHealthResponse(health))
}

// handleRecalculateAll reports per-domain failures inside the summary; the
// batch itself only fails when the active-domain listing does.
func (s *Server) handleRecalculateAll(c *gin.Context) {
	if s.trust == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	windowDays, ok := windowDaysQuery(c)
	if !ok {
		return
	}
	summary, err := s.trust.RecalculateAll(c.Request.Context(), windowDays)
	if err != nil {
		writeError(c, err)
		return
	}
	byStatus := make(map[string]int, len(summary.ByStatus))
	for status, count := range summary.ByStatus {
		byStatus[string(status)] = count
	}
	c.JSON(http.StatusOK, batchSummaryResponse{
		DomainsProcessed: summary.DomainsProcessed,
		DomainsFailed:    summary.DomainsFailed,
		AlertsRaised:     summary.AlertsRaised,
		AlertsCleared:    summary.AlertsCleared,
		ByStatus:         byStatus,
	})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/v1/sources/health:recalculate-all" {
		s.handleRecalculateAll(c)
		return
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func wantsVerification(value string) bool {
	return value == "1" || value == "true"
}

func windowDaysQuery(c *gin.Context) (int, bool) {
	raw := c.Query("windowDays")
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_FAILED", "windowDays must be a positive integer")
		return 0, false
	}
	return days, true
}

func buildRecordResponse(rec domain.Record) recordResponse {
	return recordResponse{
		ID:              rec.ID,
		Kind:            string(rec.Kind),
		Version:         rec.Version,
		Status:          string(rec.Status),
		Author:          rec.Author,
		AuthorSignature: rec.AuthorSignature,
		ContentHash:     rec.ContentHash,
		ParentHash:      rec.ParentHash,
		Payload:         rec.Payload,
		CreatedAt:       formatTime(rec.CreatedAt),
		UpdatedAt:       formatTime(rec.UpdatedAt),
	}
}

func buildActorResponse(actor domain.ActorIdentity) actorResponse {
	return actorResponse{
		ID:          actor.ID,
		Type:        string(actor.Type),
		DisplayName: actor.DisplayName,
		PublicKey:   actor.PublicKey,
		CreatedAt:   formatTime(actor.CreatedAt),
	}
}

func buildHealthResponse(health domain.SourceHealth) sourceHealthResponse {
	out := sourceHealthResponse{
		Domain:            health.Domain,
		TotalFetches:      health.TotalFetches,
		SuccessfulFetches: health.SuccessfulFetches,
		FailedFetches:     health.FailedFetches,
		SuccessRate:       health.SuccessRate,
		Latency:           health.Latency,
		ErrorsByType:      health.ErrorsByType,
		HealthStatus:      string(health.HealthStatus),
		StatusSince:       formatTime(health.StatusSince),
		AlertActive:       health.AlertActive,
		AlertReason:       health.AlertReason,
		WindowStartAt:     formatTime(health.WindowStartAt),
		WindowDays:        health.WindowDays,
		LastCalculatedAt:  formatTime(health.LastCalculatedAt),
	}
	if health.AlertSince != nil {
		out.AlertSince = formatTime(*health.AlertSince)
	}
	if health.LastFetchAt != nil {
		out.LastFetchAt = formatTime(*health.LastFetchAt)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrValidationFailed):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrCryptoFailure):
		status, code = http.StatusInternalServerError, "CRYPTO_FAILURE"
	case errors.Is(err, domain.ErrTransientIO):
		status, code = http.StatusServiceUnavailable, "TRANSIENT_IO"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		status, code = http.StatusConflict, "ALREADY_EXISTS"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

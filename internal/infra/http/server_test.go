package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tabula/internal/config"
	"tabula/internal/domain"
	"tabula/internal/infra/actorcache"
	"tabula/internal/infra/keyring"
	"tabula/internal/infra/memstore"
	"tabula/internal/usecase"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ring := keyring.New()
	registry := &usecase.ActorRegistry{
		Actors: memstore.NewActorStore(),
		Keys:   ring,
		Cache:  actorcache.New(0),
	}
	registered, err := registry.Register(context.Background(), usecase.RegisterActorRequest{
		Type:        domain.ActorUser,
		DisplayName: "tester",
	})
	if err != nil {
		t.Fatalf("register author: %v", err)
	}

	ledger := &usecase.Ledger{
		Records: memstore.NewRecordStore(),
		Actors:  registry,
		Keys:    ring,
	}
	trust := &usecase.TrustEngine{
		Fetches:     memstore.NewFetchLogStore(),
		Health:      memstore.NewSourceHealthStore(),
		Assessments: memstore.NewAssessmentStore(),
		Cfg: usecase.TrustConfig{
			HealthyMinRate:   0.8,
			DegradedMinRate:  0.5,
			MinSamples:       1,
			WindowDays:       7,
			DegradedGrace:    30 * time.Minute,
			BatchConcurrency: 2,
			HistoryEnabled:   true,
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	server := NewServerWithDeps(cfg, ServerDeps{
		Ledger:      ledger,
		Registry:    registry,
		Trust:       trust,
		AdminAPIKey: "secret",
	})
	return server, registered.Actor.ID
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v: %s", err, strings.TrimSpace(w.Body.String()))
	}
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, strings.TrimSpace(w.Body.String()))
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var resp errorResponse
	decodeInto(t, w, &resp)
	if resp.Code != expected {
		t.Fatalf("expected code %s, got %s (%s)", expected, resp.Code, resp.Message)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	server, _ := newTestServer(t, config.Config{})
	w := doJSON(t, server, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var resp map[string]string
	decodeInto(t, w, &resp)
	if resp["status"] != "ok" || resp["mode"] != "no-db" {
		t.Fatalf("unexpected healthz body: %v", resp)
	}
}

func TestRecordLifecycleEndpoints(t *testing.T) {
	server, author := newTestServer(t, config.Config{})

	w := doJSON(t, server, http.MethodPost, "/v1/records/issue", createRecordRequest{
		Payload: map[string]any{"title": "checksum drift", "severity": float64(2)},
		Status:  "active",
		Author:  author,
	}, nil)
	assertStatus(t, w, http.StatusOK)
	var created recordResponse
	decodeInto(t, w, &created)
	if !strings.HasPrefix(created.ID, "issue_") {
		t.Fatalf("unexpected record id: %s", created.ID)
	}
	if created.Version != 1 || created.Status != "active" {
		t.Fatalf("unexpected create response: version %d status %s", created.Version, created.Status)
	}
	if !strings.HasPrefix(created.ContentHash, "sha256:") || created.AuthorSignature == "" {
		t.Fatal("expected content hash and signature")
	}
	if created.ParentHash != "" {
		t.Fatalf("first version must not carry a parent hash, got %s", created.ParentHash)
	}

	w = doJSON(t, server, http.MethodPatch, "/v1/records/issue/"+created.ID, updateRecordRequest{
		Patch:  map[string]any{"severity": float64(3)},
		Author: author,
	}, nil)
	assertStatus(t, w, http.StatusOK)
	var updated recordResponse
	decodeInto(t, w, &updated)
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if updated.ParentHash != created.ContentHash {
		t.Fatalf("parent hash %s does not chain to %s", updated.ParentHash, created.ContentHash)
	}
	if updated.Payload["title"] != "checksum drift" || updated.Payload["severity"] != float64(3) {
		t.Fatalf("unexpected merged payload: %v", updated.Payload)
	}

	w = doJSON(t, server, http.MethodGet, "/v1/records/issue/"+created.ID+"?verify=1", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var verified recordResponse
	decodeInto(t, w, &verified)
	if verified.Verification == nil {
		t.Fatal("expected verification block")
	}
	if !verified.Verification.HashValid || !verified.Verification.SignatureValid {
		t.Fatalf("expected valid record, got %+v", verified.Verification)
	}

	w = doJSON(t, server, http.MethodGet, "/v1/records/issue/"+created.ID+"/chain", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var chain chainReportResponse
	decodeInto(t, w, &chain)
	if !chain.Valid || chain.Versions != 2 || len(chain.Failures) != 0 {
		t.Fatalf("unexpected chain report: %+v", chain)
	}

	w = doJSON(t, server, http.MethodDelete, "/v1/records/issue/"+created.ID, nil, nil)
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, "UNAUTHORIZED")

	w = doJSON(t, server, http.MethodDelete, "/v1/records/issue/"+created.ID, nil, map[string]string{"X-Admin-Key": "secret"})
	assertStatus(t, w, http.StatusOK)

	w = doJSON(t, server, http.MethodGet, "/v1/records/issue/"+created.ID, nil, nil)
	assertStatus(t, w, http.StatusNotFound)
	assertErrorCode(t, w, "NOT_FOUND")

	// History outlives the head row, so the chain stays auditable.
	w = doJSON(t, server, http.MethodGet, "/v1/records/issue/"+created.ID+"/chain", nil, nil)
	assertStatus(t, w, http.StatusOK)
	chain = chainReportResponse{}
	decodeInto(t, w, &chain)
	if !chain.Valid || chain.Versions != 2 {
		t.Fatalf("unexpected post-delete chain report: %+v", chain)
	}
}

func TestRecordCreateValidation(t *testing.T) {
	server, author := newTestServer(t, config.Config{})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/records/issue", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		server.r.ServeHTTP(w, req)
		assertStatus(t, w, http.StatusBadRequest)
		assertErrorCode(t, w, "INVALID_JSON")
	})

	t.Run("unknown kind", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/v1/records/widget", createRecordRequest{
			Payload: map[string]any{"title": "x"},
			Author:  author,
		}, nil)
		assertStatus(t, w, http.StatusBadRequest)
		assertErrorCode(t, w, "VALIDATION_FAILED")
	})

	t.Run("reserved payload field", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/v1/records/issue", createRecordRequest{
			Payload: map[string]any{"title": "x", "version": float64(7)},
			Author:  author,
		}, nil)
		assertStatus(t, w, http.StatusBadRequest)
		assertErrorCode(t, w, "VALIDATION_FAILED")
	})

	t.Run("unknown signer", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/v1/records/issue", createRecordRequest{
			Payload: map[string]any{"title": "x"},
			Author:  "actor_00000000000000000000000000000000",
		}, nil)
		assertStatus(t, w, http.StatusInternalServerError)
		assertErrorCode(t, w, "CRYPTO_FAILURE")
	})

	t.Run("update missing record", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPatch, "/v1/records/issue/issue_00000000000000000000000000000000", updateRecordRequest{
			Patch:  map[string]any{"title": "y"},
			Author: author,
		}, nil)
		assertStatus(t, w, http.StatusNotFound)
		assertErrorCode(t, w, "NOT_FOUND")
	})
}

func TestActorEndpoints(t *testing.T) {
	server, _ := newTestServer(t, config.Config{})

	w := doJSON(t, server, http.MethodPost, "/v1/actors", registerActorRequest{Type: "agent", DisplayName: "crawler"}, nil)
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, "UNAUTHORIZED")

	w = doJSON(t, server, http.MethodPost, "/v1/actors", registerActorRequest{Type: "agent", DisplayName: "crawler"},
		map[string]string{"X-Admin-Key": "secret"})
	assertStatus(t, w, http.StatusOK)
	var registered registeredActorResponse
	decodeInto(t, w, &registered)
	if !domain.ValidActorID(registered.ID) {
		t.Fatalf("unexpected actor id: %s", registered.ID)
	}
	if len(registered.SeedHex) != 64 {
		t.Fatalf("expected 32-byte seed hex, got %d chars", len(registered.SeedHex))
	}
	if registered.PublicKey == "" {
		t.Fatal("expected public key")
	}

	w = doJSON(t, server, http.MethodGet, "/v1/actors/"+registered.ID, nil, nil)
	assertStatus(t, w, http.StatusOK)
	var fetched map[string]any
	decodeInto(t, w, &fetched)
	if fetched["id"] != registered.ID || fetched["type"] != "agent" {
		t.Fatalf("unexpected actor body: %v", fetched)
	}
	if _, leaked := fetched["seedHex"]; leaked {
		t.Fatal("seed must not be returned after registration")
	}

	w = doJSON(t, server, http.MethodGet, "/v1/actors/actor_00000000000000000000000000000000", nil, nil)
	assertStatus(t, w, http.StatusNotFound)

	w = doJSON(t, server, http.MethodPost, "/v1/actors", registerActorRequest{Type: "robot"},
		map[string]string{"X-Admin-Key": "secret"})
	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, "VALIDATION_FAILED")
}

func seedFetchesHTTP(t *testing.T, server *Server, sourceDomain string, successes, failures int) {
	t.Helper()
	for i := 0; i < successes; i++ {
		w := doJSON(t, server, http.MethodPost, "/v1/fetches", appendFetchRequest{
			Domain:    sourceDomain,
			Outcome:   "success",
			LatencyMs: float64(100 + 10*i),
		}, nil)
		assertStatus(t, w, http.StatusOK)
	}
	for i := 0; i < failures; i++ {
		w := doJSON(t, server, http.MethodPost, "/v1/fetches", appendFetchRequest{
			Domain:     sourceDomain,
			Outcome:    "failure",
			LatencyMs:  50,
			ErrorClass: "timeout",
		}, nil)
		assertStatus(t, w, http.StatusOK)
	}
}

func TestFetchAndHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t, config.Config{})
	seedFetchesHTTP(t, server, "news.example.org", 9, 1)

	w := doJSON(t, server, http.MethodPost, "/v1/sources/news.example.org/health:recalculate", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var health sourceHealthResponse
	decodeInto(t, w, &health)
	if health.HealthStatus != "healthy" {
		t.Fatalf("expected healthy, got %s", health.HealthStatus)
	}
	if health.SuccessRate == nil || *health.SuccessRate != 0.9 {
		t.Fatalf("unexpected success rate: %v", health.SuccessRate)
	}
	if health.Latency == nil || health.Latency.MeanMs != 140 || health.Latency.P95Ms != 180 {
		t.Fatalf("unexpected latency summary: %+v", health.Latency)
	}
	if health.ErrorsByType["timeout"] != 1 {
		t.Fatalf("unexpected error classes: %v", health.ErrorsByType)
	}

	w = doJSON(t, server, http.MethodGet, "/v1/sources/news.example.org/health", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var stored sourceHealthResponse
	decodeInto(t, w, &stored)
	if stored.TotalFetches != 10 || stored.HealthStatus != "healthy" {
		t.Fatalf("unexpected stored health: %+v", stored)
	}

	w = doJSON(t, server, http.MethodGet, "/v1/sources/news.example.org/health/history", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var history []healthSnapshotResponse
	decodeInto(t, w, &history)
	if len(history) != 1 || history[0].HealthStatus != "healthy" {
		t.Fatalf("unexpected history: %+v", history)
	}

	w = doJSON(t, server, http.MethodGet, "/v1/sources/news.example.org/health/history?limit=abc", nil, nil)
	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, "VALIDATION_FAILED")

	w = doJSON(t, server, http.MethodGet, "/v1/sources/silent.example.org/health", nil, nil)
	assertStatus(t, w, http.StatusNotFound)

	w = doJSON(t, server, http.MethodPost, "/v1/fetches", appendFetchRequest{Domain: "news.example.org", Outcome: "sideways"}, nil)
	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, "VALIDATION_FAILED")
}

func TestRecalculateAllDispatch(t *testing.T) {
	server, _ := newTestServer(t, config.Config{})
	seedFetchesHTTP(t, server, "steady.example.org", 10, 0)
	seedFetchesHTTP(t, server, "flaky.example.org", 1, 9)

	w := doJSON(t, server, http.MethodPost, "/v1/sources/health:recalculate-all", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var summary batchSummaryResponse
	decodeInto(t, w, &summary)
	if summary.DomainsProcessed != 2 || summary.DomainsFailed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ByStatus["healthy"] != 1 || summary.ByStatus["unhealthy"] != 1 {
		t.Fatalf("unexpected status counts: %v", summary.ByStatus)
	}
	if summary.AlertsRaised != 1 {
		t.Fatalf("expected one alert raised, got %d", summary.AlertsRaised)
	}

	t.Run("get not routed", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/v1/sources/health:recalculate-all", nil, nil)
		assertStatus(t, w, http.StatusNotFound)
	})

	t.Run("extra segment 404", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/v1/sources/health:recalculate-all/extra", nil, nil)
		assertStatus(t, w, http.StatusNotFound)
	})

	t.Run("unknown action 404", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/v1/sources/steady.example.org/health:promote", nil, nil)
		assertStatus(t, w, http.StatusNotFound)
		w = doJSON(t, server, http.MethodPost, "/v1/sources/steady.example.org/bogus", nil, nil)
		assertStatus(t, w, http.StatusNotFound)
	})
}

func TestAssessmentAndScoreEndpoints(t *testing.T) {
	server, _ := newTestServer(t, config.Config{})

	w := doJSON(t, server, http.MethodGet, "/v1/sources/wire.example.org/score", nil, nil)
	assertStatus(t, w, http.StatusNotFound)

	full := assessmentRequest{
		Independence:                1,
		PerspectiveDiversity:        1,
		SelectionBiasResistance:     1,
		QuantificationBiasAwareness: 1,
		IdeologicalTransparency:     1,
		FundingTransparency:         1,
		ConflictDisclosure:          1,
		GeographicNeutrality:        1,
		TemporalNeutrality:          1,
		FactualAccuracy:             1,
		MethodologicalRigor:         1,
		Transparency:                1,
	}
	w = doJSON(t, server, http.MethodPut, "/v1/sources/wire.example.org/assessment", full, nil)
	assertStatus(t, w, http.StatusOK)

	w = doJSON(t, server, http.MethodGet, "/v1/sources/wire.example.org/score", nil, nil)
	assertStatus(t, w, http.StatusOK)
	var score sourceScoreResponse
	decodeInto(t, w, &score)
	if score.DebiasedScore != 1.0 || score.OverallCredibility != 1.0 {
		t.Fatalf("unexpected scores: %+v", score)
	}
	if score.AssessedAt == "" {
		t.Fatal("expected assessedAt timestamp")
	}

	outOfRange := full
	outOfRange.Independence = 1.5
	w = doJSON(t, server, http.MethodPut, "/v1/sources/wire.example.org/assessment", outOfRange, nil)
	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, "VALIDATION_FAILED")
}

func TestRateLimitEnforcement(t *testing.T) {
	server, _ := newTestServer(t, config.Config{
		RateLimitRequests:      2,
		RateLimitWindowSeconds: 60,
		RateLimitMaxKeys:       100,
	})

	fetch := appendFetchRequest{Domain: "news.example.org", Outcome: "success", LatencyMs: 10}

	w := doJSON(t, server, http.MethodPost, "/v1/fetches", fetch, nil)
	assertStatus(t, w, http.StatusOK)
	if got := w.Header().Get("RateLimit-Limit"); got != "2" {
		t.Fatalf("unexpected RateLimit-Limit: %q", got)
	}
	if got := w.Header().Get("RateLimit-Remaining"); got != "1" {
		t.Fatalf("unexpected RateLimit-Remaining: %q", got)
	}

	w = doJSON(t, server, http.MethodPost, "/v1/fetches", fetch, nil)
	assertStatus(t, w, http.StatusOK)
	if got := w.Header().Get("RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected RateLimit-Remaining: %q", got)
	}

	w = doJSON(t, server, http.MethodPost, "/v1/fetches", fetch, nil)
	assertStatus(t, w, http.StatusTooManyRequests)
	assertErrorCode(t, w, "RATE_LIMITED")
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on denial")
	}

	// Records go through a different route bucket.
	w = doJSON(t, server, http.MethodPost, "/v1/records/issue", createRecordRequest{
		Payload: map[string]any{"title": "x"},
		Author:  "actor_00000000000000000000000000000000",
	}, nil)
	if w.Code == http.StatusTooManyRequests {
		t.Fatal("route buckets must be independent")
	}
}

func TestStreamRouteWired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServerWithDeps(config.Config{}, ServerDeps{
		Stream: func(c *gin.Context) { c.String(http.StatusOK, "stream") },
	})
	w := doJSON(t, server, http.MethodGet, "/v1/stream", nil, nil)
	assertStatus(t, w, http.StatusOK)
	if w.Body.String() != "stream" {
		t.Fatalf("unexpected stream body: %s", w.Body.String())
	}
}

func TestNilDepsReturnNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServerWithDeps(config.Config{}, ServerDeps{})

	w := doJSON(t, server, http.MethodGet, "/v1/records/issue/issue_00000000000000000000000000000000", nil, nil)
	assertStatus(t, w, http.StatusNotFound)

	w = doJSON(t, server, http.MethodGet, "/v1/sources/news.example.org/health", nil, nil)
	assertStatus(t, w, http.StatusNotFound)

	w = doJSON(t, server, http.MethodGet, "/v1/stream", nil, nil)
	assertStatus(t, w, http.StatusNotFound)
}

package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"tabula/internal/domain"
)

type FetchLogStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []domain.SourceFetch
}

func NewFetchLogStore() *FetchLogStore {
	return &FetchLogStore{nextID: 1}
}

func (s *FetchLogStore) Append(ctx context.Context, fetch domain.SourceFetch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fetch.ID = s.nextID
	s.nextID++
	fetch.FetchedAt = fetch.FetchedAt.UTC()
	s.rows = append(s.rows, fetch)
	return nil
}

func (s *FetchLogStore) ListWindow(ctx context.Context, sourceDomain string, from, to time.Time) ([]domain.SourceFetch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to = from.UTC(), to.UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SourceFetch
	for _, row := range s.rows {
		if row.Domain != sourceDomain {
			continue
		}
		if row.FetchedAt.Before(from) || row.FetchedAt.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FetchedAt.Before(out[j].FetchedAt) })
	return out, nil
}

func (s *FetchLogStore) ActiveDomains(ctx context.Context, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	since = since.UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, row := range s.rows {
		if row.FetchedAt.Before(since) {
			continue
		}
		seen[row.Domain] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

type SourceHealthStore struct {
	mu        sync.RWMutex
	health    map[string]domain.SourceHealth
	snapshots map[string][]domain.HealthSnapshot
}

func NewSourceHealthStore() *SourceHealthStore {
	return &SourceHealthStore{
		health:    make(map[string]domain.SourceHealth),
		snapshots: make(map[string][]domain.HealthSnapshot),
	}
}

func (s *SourceHealthStore) Get(ctx context.Context, sourceDomain string) (domain.SourceHealth, error) {
	if err := ctx.Err(); err != nil {
		return domain.SourceHealth{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	health, ok := s.health[sourceDomain]
	if !ok {
		return domain.SourceHealth{}, domain.ErrNotFound
	}
	return cloneHealth(health), nil
}

func (s *SourceHealthStore) Upsert(ctx context.Context, health domain.SourceHealth) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[health.Domain] = cloneHealth(health)
	return nil
}

func (s *SourceHealthStore) AppendSnapshot(ctx context.Context, snap domain.HealthSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.SuccessRate = copyFloatPtr(snap.SuccessRate)
	snap.RecordedAt = snap.RecordedAt.UTC()
	s.snapshots[snap.Domain] = append(s.snapshots[snap.Domain], snap)
	return nil
}

func (s *SourceHealthStore) History(ctx context.Context, sourceDomain string, limit int) ([]domain.HealthSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.snapshots[sourceDomain]
	out := make([]domain.HealthSnapshot, 0, limit)
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

type AssessmentStore struct {
	mu          sync.RWMutex
	assessments map[string]domain.SourceAssessment
}

func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{assessments: make(map[string]domain.SourceAssessment)}
}

func (s *AssessmentStore) Get(ctx context.Context, sourceDomain string) (domain.SourceAssessment, error) {
	if err := ctx.Err(); err != nil {
		return domain.SourceAssessment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	assessment, ok := s.assessments[sourceDomain]
	if !ok {
		return domain.SourceAssessment{}, domain.ErrNotFound
	}
	return assessment, nil
}

func (s *AssessmentStore) Upsert(ctx context.Context, assessment domain.SourceAssessment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[assessment.Domain] = assessment
	return nil
}

func cloneHealth(health domain.SourceHealth) domain.SourceHealth {
	out := health
	out.SuccessRate = copyFloatPtr(health.SuccessRate)
	out.AlertSince = copyTimePtr(health.AlertSince)
	out.LastFetchAt = copyTimePtr(health.LastFetchAt)
	if health.Latency != nil {
		latency := *health.Latency
		out.Latency = &latency
	}
	if health.ErrorsByType != nil {
		errs := make(map[string]int64, len(health.ErrorsByType))
		for k, v := range health.ErrorsByType {
			errs[k] = v
		}
		out.ErrorsByType = errs
	}
	return out
}

func copyFloatPtr(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func copyTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

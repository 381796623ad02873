package db

import (
	"context"
	"time"

	"tabula/internal/domain"

	"gorm.io/gorm"
)

type FetchLogRepository struct {
	db *gorm.DB
}

func NewFetchLogRepository(db *gorm.DB) *FetchLogRepository {
	return &FetchLogRepository{db: db}
}

// Append adds one fetch attempt to the append-only log.
func (r *FetchLogRepository) Append(ctx context.Context, fetch domain.SourceFetch) error {
	model := SourceFetchModel{
		Domain:     fetch.Domain,
		Outcome:    string(fetch.Outcome),
		LatencyMs:  fetch.LatencyMs,
		ErrorClass: stringPtrIfNotEmpty(fetch.ErrorClass),
		FetchedAt:  fetch.FetchedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListWindow returns a domain's fetch attempts inside [from, to], oldest
// first.
func (r *FetchLogRepository) ListWindow(ctx context.Context, sourceDomain string, from, to time.Time) ([]domain.SourceFetch, error) {
	var models []SourceFetchModel
	err := r.db.WithContext(ctx).
		Where("domain = ? AND fetched_at >= ? AND fetched_at <= ?", sourceDomain, from.UTC(), to.UTC()).
		Order("fetched_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.SourceFetch, 0, len(models))
	for _, model := range models {
		out = append(out, domain.SourceFetch{
			ID:         model.ID,
			Domain:     model.Domain,
			Outcome:    domain.FetchOutcome(model.Outcome),
			LatencyMs:  model.LatencyMs,
			ErrorClass: stringValue(model.ErrorClass),
			FetchedAt:  model.FetchedAt.UTC(),
		})
	}
	return out, nil
}

// ActiveDomains lists the domains with at least one fetch attempt since
// the given time.
func (r *FetchLogRepository) ActiveDomains(ctx context.Context, since time.Time) ([]string, error) {
	var domains []string
	err := r.db.WithContext(ctx).
		Model(&SourceFetchModel{}).
		Distinct("domain").
		Where("fetched_at >= ?", since.UTC()).
		Order("domain ASC").
		Pluck("domain", &domains).Error
	if err != nil {
		return nil, err
	}
	return domains, nil
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tabula/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SourceHealthRepository struct {
	db *gorm.DB
}

func NewSourceHealthRepository(db *gorm.DB) *SourceHealthRepository {
	return &SourceHealthRepository{db: db}
}

func (r *SourceHealthRepository) Get(ctx context.Context, sourceDomain string) (domain.SourceHealth, error) {
	var model SourceHealthModel
	err := r.db.WithContext(ctx).Where("domain = ?", sourceDomain).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SourceHealth{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SourceHealth{}, err
	}
	return healthFromModel(model)
}

// Upsert writes the full recalculated state for a domain, inserting the
// row on first contact.
func (r *SourceHealthRepository) Upsert(ctx context.Context, health domain.SourceHealth) error {
	model, err := healthModelFromDomain(health)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

// AppendSnapshot adds a history row. Failures here are the caller's to
// log; they never veto the primary health write.
func (r *SourceHealthRepository) AppendSnapshot(ctx context.Context, snap domain.HealthSnapshot) error {
	model := HealthSnapshotModel{
		Domain:       snap.Domain,
		SuccessRate:  copyFloatPtr(snap.SuccessRate),
		HealthStatus: string(snap.HealthStatus),
		RecordedAt:   snap.RecordedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// History returns the newest snapshots for a domain, most recent first.
func (r *SourceHealthRepository) History(ctx context.Context, sourceDomain string, limit int) ([]domain.HealthSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []HealthSnapshotModel
	err := r.db.WithContext(ctx).
		Where("domain = ?", sourceDomain).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.HealthSnapshot, 0, len(models))
	for _, model := range models {
		out = append(out, domain.HealthSnapshot{
			Domain:       model.Domain,
			SuccessRate:  copyFloatPtr(model.SuccessRate),
			HealthStatus: domain.HealthStatus(model.HealthStatus),
			RecordedAt:   model.RecordedAt.UTC(),
		})
	}
	return out, nil
}

func healthModelFromDomain(health domain.SourceHealth) (SourceHealthModel, error) {
	errorsJSON, err := json.Marshal(health.ErrorsByType)
	if err != nil {
		return SourceHealthModel{}, fmt.Errorf("encode errors by type: %w", err)
	}
	model := SourceHealthModel{
		Domain:            health.Domain,
		TotalFetches:      health.TotalFetches,
		SuccessfulFetches: health.SuccessfulFetches,
		FailedFetches:     health.FailedFetches,
		SuccessRate:       copyFloatPtr(health.SuccessRate),
		ErrorsJSON:        errorsJSON,
		HealthStatus:      string(health.HealthStatus),
		StatusSince:       health.StatusSince.UTC(),
		AlertActive:       health.AlertActive,
		AlertReason:       stringPtrIfNotEmpty(health.AlertReason),
		AlertSince:        copyTimePtr(health.AlertSince),
		WindowStartAt:     health.WindowStartAt.UTC(),
		WindowDays:        health.WindowDays,
		LastFetchAt:       copyTimePtr(health.LastFetchAt),
		LastCalculatedAt:  health.LastCalculatedAt.UTC(),
	}
	if health.Latency != nil {
		model.LatencyMeanMs = &health.Latency.MeanMs
		model.LatencyP95Ms = &health.Latency.P95Ms
		model.LatencyMinMs = &health.Latency.MinMs
		model.LatencyMaxMs = &health.Latency.MaxMs
	}
	return model, nil
}

func healthFromModel(model SourceHealthModel) (domain.SourceHealth, error) {
	var errorsByType map[string]int64
	if len(model.ErrorsJSON) > 0 {
		if err := json.Unmarshal(model.ErrorsJSON, &errorsByType); err != nil {
			return domain.SourceHealth{}, fmt.Errorf("decode errors by type: %w", err)
		}
	}
	if errorsByType == nil {
		errorsByType = map[string]int64{}
	}
	health := domain.SourceHealth{
		Domain:            model.Domain,
		TotalFetches:      model.TotalFetches,
		SuccessfulFetches: model.SuccessfulFetches,
		FailedFetches:     model.FailedFetches,
		SuccessRate:       copyFloatPtr(model.SuccessRate),
		ErrorsByType:      errorsByType,
		HealthStatus:      domain.HealthStatus(model.HealthStatus),
		StatusSince:       model.StatusSince.UTC(),
		AlertActive:       model.AlertActive,
		AlertReason:       stringValue(model.AlertReason),
		AlertSince:        copyTimePtr(model.AlertSince),
		WindowStartAt:     model.WindowStartAt.UTC(),
		WindowDays:        model.WindowDays,
		LastFetchAt:       copyTimePtr(model.LastFetchAt),
		LastCalculatedAt:  model.LastCalculatedAt.UTC(),
	}
	if model.LatencyMeanMs != nil && model.LatencyP95Ms != nil && model.LatencyMinMs != nil && model.LatencyMaxMs != nil {
		health.Latency = &domain.LatencySummary{
			MeanMs: *model.LatencyMeanMs,
			P95Ms:  *model.LatencyP95Ms,
			MinMs:  *model.LatencyMinMs,
			MaxMs:  *model.LatencyMaxMs,
		}
	}
	return health, nil
}

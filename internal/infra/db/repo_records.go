package db

import (
	"context"
	"errors"

	"tabula/internal/domain"

	"gorm.io/gorm"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts the head row and the version-1 history row in one
// transaction, so a record is never visible without its chain origin.
func (r *RecordRepository) Create(ctx context.Context, rec domain.Record) error {
	row, err := recordRowFromDomain(rec)
	if err != nil {
		return err
	}
	version, err := versionModelFromDomain(recordVersionOf(rec))
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(recordTable(rec.Kind)).Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&version).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *RecordRepository) Get(ctx context.Context, kind domain.RecordKind, id string) (domain.Record, error) {
	var row RecordRow
	err := r.db.WithContext(ctx).Table(recordTable(kind)).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Record{}, err
	}
	return recordFromRow(kind, row)
}

// UpdateCAS persists a new record version guarded by a compare-and-swap on
// the head row's version column. A row that moved on underneath the caller
// surfaces as ErrConflict; a vanished row as ErrNotFound. The head update
// and the history append commit together.
func (r *RecordRepository) UpdateCAS(ctx context.Context, rec domain.Record, expectedVersion int64) error {
	payloadJSON, err := encodePayload(rec.Payload)
	if err != nil {
		return err
	}
	version, err := versionModelFromDomain(recordVersionOf(rec))
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(recordTable(rec.Kind)).
			Where("id = ? AND version = ?", rec.ID, expectedVersion).
			Updates(map[string]any{
				"version":          rec.Version,
				"status":           string(rec.Status),
				"author":           rec.Author,
				"author_signature": rec.AuthorSignature,
				"content_hash":     rec.ContentHash,
				"parent_hash":      rec.ParentHash,
				"payload_json":     payloadJSON,
				"updated_at":       rec.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Table(recordTable(rec.Kind)).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}
		return tx.Create(&version).Error
	})
}

// Delete removes the head row. Version history is retained; the chain of a
// deleted record stays verifiable.
func (r *RecordRepository) Delete(ctx context.Context, kind domain.RecordKind, id string) error {
	res := r.db.WithContext(ctx).Table(recordTable(kind)).Where("id = ?", id).Delete(&RecordRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Versions returns a record's full chain, oldest first.
func (r *RecordRepository) Versions(ctx context.Context, kind domain.RecordKind, id string) ([]domain.RecordVersion, error) {
	var models []RecordVersionModel
	err := r.db.WithContext(ctx).
		Where("record_id = ? AND kind = ?", id, string(kind)).
		Order("version ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.RecordVersion, 0, len(models))
	for _, model := range models {
		v, err := versionFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func recordVersionOf(rec domain.Record) domain.RecordVersion {
	return domain.RecordVersion{
		RecordID:        rec.ID,
		Kind:            rec.Kind,
		Version:         rec.Version,
		Status:          rec.Status,
		Author:          rec.Author,
		AuthorSignature: rec.AuthorSignature,
		ContentHash:     rec.ContentHash,
		ParentHash:      rec.ParentHash,
		Payload:         rec.Payload,
		RecordCreatedAt: rec.CreatedAt,
		CreatedAt:       rec.UpdatedAt,
	}
}

func recordRowFromDomain(rec domain.Record) (RecordRow, error) {
	payloadJSON, err := encodePayload(rec.Payload)
	if err != nil {
		return RecordRow{}, err
	}
	return RecordRow{
		ID:              rec.ID,
		Version:         rec.Version,
		Status:          string(rec.Status),
		Author:          rec.Author,
		AuthorSignature: rec.AuthorSignature,
		ContentHash:     rec.ContentHash,
		ParentHash:      rec.ParentHash,
		PayloadJSON:     payloadJSON,
		CreatedAt:       rec.CreatedAt.UTC(),
		UpdatedAt:       rec.UpdatedAt.UTC(),
	}, nil
}

func recordFromRow(kind domain.RecordKind, row RecordRow) (domain.Record, error) {
	payload, err := decodePayload(row.PayloadJSON)
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{
		ID:              row.ID,
		Kind:            kind,
		Version:         row.Version,
		Status:          domain.RecordStatus(row.Status),
		Author:          row.Author,
		AuthorSignature: row.AuthorSignature,
		ContentHash:     row.ContentHash,
		ParentHash:      row.ParentHash,
		Payload:         payload,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}, nil
}

func versionModelFromDomain(v domain.RecordVersion) (RecordVersionModel, error) {
	payloadJSON, err := encodePayload(v.Payload)
	if err != nil {
		return RecordVersionModel{}, err
	}
	return RecordVersionModel{
		RecordID:        v.RecordID,
		Version:         v.Version,
		Kind:            string(v.Kind),
		Status:          string(v.Status),
		Author:          v.Author,
		AuthorSignature: v.AuthorSignature,
		ContentHash:     v.ContentHash,
		ParentHash:      v.ParentHash,
		PayloadJSON:     payloadJSON,
		RecordCreatedAt: v.RecordCreatedAt.UTC(),
		CreatedAt:       v.CreatedAt.UTC(),
	}, nil
}

func versionFromModel(model RecordVersionModel) (domain.RecordVersion, error) {
	payload, err := decodePayload(model.PayloadJSON)
	if err != nil {
		return domain.RecordVersion{}, err
	}
	return domain.RecordVersion{
		RecordID:        model.RecordID,
		Kind:            domain.RecordKind(model.Kind),
		Version:         model.Version,
		Status:          domain.RecordStatus(model.Status),
		Author:          model.Author,
		AuthorSignature: model.AuthorSignature,
		ContentHash:     model.ContentHash,
		ParentHash:      model.ParentHash,
		Payload:         payload,
		RecordCreatedAt: model.RecordCreatedAt.UTC(),
		CreatedAt:       model.CreatedAt.UTC(),
	}, nil
}

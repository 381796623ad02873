package db

import (
	"context"
	"errors"

	"tabula/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssessmentRepository struct {
	db *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

func (r *AssessmentRepository) Get(ctx context.Context, sourceDomain string) (domain.SourceAssessment, error) {
	var model SourceAssessmentModel
	err := r.db.WithContext(ctx).Where("domain = ?", sourceDomain).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SourceAssessment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SourceAssessment{}, err
	}
	return assessmentFromModel(model), nil
}

func (r *AssessmentRepository) Upsert(ctx context.Context, assessment domain.SourceAssessment) error {
	model := assessmentModelFromDomain(assessment)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

func assessmentModelFromDomain(a domain.SourceAssessment) SourceAssessmentModel {
	return SourceAssessmentModel{
		Domain:                      a.Domain,
		Independence:                a.Independence,
		PerspectiveDiversity:        a.PerspectiveDiversity,
		SelectionBiasResistance:     a.SelectionBiasResistance,
		QuantificationBiasAwareness: a.QuantificationBiasAwareness,
		IdeologicalTransparency:     a.IdeologicalTransparency,
		FundingTransparency:         a.FundingTransparency,
		ConflictDisclosure:          a.ConflictDisclosure,
		GeographicNeutrality:        a.GeographicNeutrality,
		TemporalNeutrality:          a.TemporalNeutrality,
		FactualAccuracy:             a.FactualAccuracy,
		MethodologicalRigor:         a.MethodologicalRigor,
		Transparency:                a.Transparency,
		UpdatedAt:                   a.UpdatedAt.UTC(),
	}
}

func assessmentFromModel(m SourceAssessmentModel) domain.SourceAssessment {
	return domain.SourceAssessment{
		Domain:                      m.Domain,
		Independence:                m.Independence,
		PerspectiveDiversity:        m.PerspectiveDiversity,
		SelectionBiasResistance:     m.SelectionBiasResistance,
		QuantificationBiasAwareness: m.QuantificationBiasAwareness,
		IdeologicalTransparency:     m.IdeologicalTransparency,
		FundingTransparency:         m.FundingTransparency,
		ConflictDisclosure:          m.ConflictDisclosure,
		GeographicNeutrality:        m.GeographicNeutrality,
		TemporalNeutrality:          m.TemporalNeutrality,
		FactualAccuracy:             m.FactualAccuracy,
		MethodologicalRigor:         m.MethodologicalRigor,
		Transparency:                m.Transparency,
		UpdatedAt:                   m.UpdatedAt.UTC(),
	}
}

package db

import (
	"context"
	"errors"

	"tabula/internal/domain"

	"gorm.io/gorm"
)

type ActorRepository struct {
	db *gorm.DB
}

func NewActorRepository(db *gorm.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

func (r *ActorRepository) Create(ctx context.Context, actor domain.ActorIdentity) error {
	model := ActorModel{
		ID:          actor.ID,
		Type:        string(actor.Type),
		DisplayName: actor.DisplayName,
		PublicKey:   actor.PublicKey,
		CreatedAt:   actor.CreatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *ActorRepository) Get(ctx context.Context, id string) (domain.ActorIdentity, error) {
	var model ActorModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ActorIdentity{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ActorIdentity{}, err
	}
	return domain.ActorIdentity{
		ID:          model.ID,
		Type:        domain.ActorType(model.Type),
		DisplayName: model.DisplayName,
		PublicKey:   model.PublicKey,
		CreatedAt:   model.CreatedAt.UTC(),
	}, nil
}

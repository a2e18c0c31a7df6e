package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"datatoken/internal/infra/contentstore"
	"datatoken/internal/usecase"
)

// ContentRepository stores documents in postgres under their content
// locator.
type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) Put(ctx context.Context, document []byte) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	locator, err := contentstore.Locator(document)
	if err != nil {
		return "", err
	}
	model := DocumentModel{Locator: locator, Body: append([]byte(nil), document...), CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return "", err
	}
	return locator, nil
}

func (r *ContentRepository) Get(ctx context.Context, locator string) ([]byte, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DocumentModel
	if err := r.db.WithContext(ctx).First(&model, "locator = ?", locator).Error; err != nil {
		return nil, notFound(err)
	}
	return model.Body, nil
}

var _ usecase.ContentStore = (*ContentRepository)(nil)

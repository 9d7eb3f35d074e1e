package repository

import (
	"context"

	"floraledger/internal/model"

	"gorm.io/gorm"
)

// AuditRepository appends audit entries. Nothing reads them back.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

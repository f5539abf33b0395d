package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"otp/internal/domain"
)

type AuditStore struct{ db *gorm.DB }

func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.DB} }

func (a *AuditStore) Append(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return a.db.WithContext(ctx).Create(entry).Error
}

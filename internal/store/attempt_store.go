package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"otp/internal/domain"
)

type AttemptStore struct{ db *gorm.DB }

func (s *Store) Attempts() *AttemptStore { return &AttemptStore{db: s.DB} }

// Append writes one delivery attempt. Attempts are never updated.
func (a *AttemptStore) Append(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptStore) ListByUser(ctx context.Context, userID domain.UserID, since time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	var out []domain.DeliveryAttempt
	tx := a.db.WithContext(ctx).
		Where("user_id = ? AND attempted_at >= ?", userID, since).
		Order("attempted_at desc")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AttemptStore) ListByChallenge(ctx context.Context, challengeID domain.ChallengeID) ([]domain.DeliveryAttempt, error) {
	var out []domain.DeliveryAttempt
	err := a.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("attempted_at asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PruneOlderThan enforces the bounded history window used by
// diagnostics.
func (a *AttemptStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := a.db.WithContext(ctx).
		Where("attempted_at < ?", cutoff).
		Delete(&domain.DeliveryAttempt{})
	return res.RowsAffected, res.Error
}

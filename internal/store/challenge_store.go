package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"otp/internal/domain"
)

type ChallengeStore struct{ db *gorm.DB }

func (s *Store) Challenges() *ChallengeStore { return &ChallengeStore{db: s.DB} }

func (c *ChallengeStore) Create(ctx context.Context, ch *domain.OTPChallenge) error {
	if ch.ID == uuid.Nil {
		ch.ID = domain.NewChallengeID()
	}
	return c.db.WithContext(ctx).Create(ch).Error
}

func (c *ChallengeStore) GetByID(ctx context.Context, id domain.ChallengeID) (*domain.OTPChallenge, error) {
	var ch domain.OTPChallenge
	if err := c.db.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// GetPendingByUser returns the newest pending challenge for a user
// across channels.
func (c *ChallengeStore) GetPendingByUser(ctx context.Context, userID domain.UserID) (*domain.OTPChallenge, error) {
	var ch domain.OTPChallenge
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.ChallengePending).
		Order("created_at desc").
		First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// InvalidatePending expires any pending challenge for (user, channel).
// Called before creating a replacement so at most one is ever in flight.
func (c *ChallengeStore) InvalidatePending(ctx context.Context, userID domain.UserID, ch domain.Channel, at time.Time) error {
	return c.db.WithContext(ctx).Model(&domain.OTPChallenge{}).
		Where("user_id = ? AND channel = ? AND status = ?", userID, ch, domain.ChallengePending).
		Updates(map[string]any{"status": domain.ChallengeExpired, "updated_at": at}).Error
}

// SetStatus moves a pending challenge into a terminal status. The
// status guard makes terminal states sticky even under races.
func (c *ChallengeStore) SetStatus(ctx context.Context, id domain.ChallengeID, status domain.ChallengeStatus, at time.Time) error {
	return c.db.WithContext(ctx).Model(&domain.OTPChallenge{}).
		Where("id = ? AND status = ?", id, domain.ChallengePending).
		Updates(map[string]any{"status": status, "updated_at": at}).Error
}

func (c *ChallengeStore) SetAttempts(ctx context.Context, id domain.ChallengeID, attempts int, at time.Time) error {
	return c.db.WithContext(ctx).Model(&domain.OTPChallenge{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempts": attempts, "updated_at": at}).Error
}

// ExpireOverdue sweeps pending challenges whose expiry has passed and
// returns how many were transitioned.
func (c *ChallengeStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := c.db.WithContext(ctx).Model(&domain.OTPChallenge{}).
		Where("status = ? AND expires_at < ?", domain.ChallengePending, now).
		Updates(map[string]any{"status": domain.ChallengeExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Alternate returns the channel a caller should be pointed at when
// delivery over this one keeps failing.
func (c Channel) Alternate() Channel {
	if c == ChannelSMS {
		return ChannelEmail
	}
	return ChannelSMS
}

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeVerified ChallengeStatus = "verified"
	ChallengeExpired  ChallengeStatus = "expired"
	ChallengeFailed   ChallengeStatus = "failed"
)

// Terminal reports whether a challenge in this status can still change.
// pending is the only non-terminal status.
func (s ChallengeStatus) Terminal() bool { return s != ChallengePending }

type OTPChallenge struct {
	ID          ChallengeID     `gorm:"type:uuid;primaryKey" db:"id"`
	UserID      UserID          `gorm:"type:uuid;not null;index:idx_otp_challenges_user_status,priority:1" db:"user_id"`
	Channel     Channel         `gorm:"type:text;not null" db:"channel"`
	Contact     string          `gorm:"type:text;not null" db:"contact"`
	CodeDigest  []byte          `gorm:"type:bytea;not null" db:"code_digest"`
	CodeSalt    []byte          `gorm:"type:bytea;not null" db:"code_salt"`
	Status      ChallengeStatus `gorm:"type:text;not null;index:idx_otp_challenges_user_status,priority:2" db:"status"`
	Attempts    int             `gorm:"not null;default:0" db:"attempts"`
	MaxAttempts int             `gorm:"not null" db:"max_attempts"`
	CreatedAt   time.Time       `gorm:"not null" db:"created_at"`
	ExpiresAt   time.Time       `gorm:"not null" db:"expires_at"`
	UpdatedAt   time.Time       `gorm:"not null" db:"updated_at"`
}

func (OTPChallenge) TableName() string { return "otp_challenges" }

func (c *OTPChallenge) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func NewChallengeID() ChallengeID { return uuid.New() }

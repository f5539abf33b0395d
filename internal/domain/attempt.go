package domain

import (
	"time"
)

type AttemptOutcome string

const (
	OutcomeQueued    AttemptOutcome = "queued"
	OutcomeSent      AttemptOutcome = "sent"
	OutcomeDelivered AttemptOutcome = "delivered"
	OutcomeFailed    AttemptOutcome = "failed"
)

// Success reports whether the outcome counts as a delivery for
// success-rate purposes. Carriers rarely confirm terminal delivery
// synchronously, so "sent" counts too.
func (o AttemptOutcome) Success() bool {
	return o == OutcomeSent || o == OutcomeDelivered
}

// DeliveryAttempt is one provider call. Rows are append-only: the
// record is written once, after the call completes, carrying the
// pre-call timestamp so ordering within a challenge reflects the
// order providers were tried.
type DeliveryAttempt struct {
	ID          AttemptID      `gorm:"type:uuid;primaryKey" db:"id"`
	ChallengeID *ChallengeID   `gorm:"type:uuid;index" db:"challenge_id"`
	UserID      UserID         `gorm:"type:uuid;not null;index:idx_delivery_attempts_user_at,priority:1" db:"user_id"`
	Channel     Channel        `gorm:"type:text;not null" db:"channel"`
	Provider    string         `gorm:"type:text;not null" db:"provider"`
	Outcome     AttemptOutcome `gorm:"type:text;not null" db:"outcome"`
	Error       *string        `gorm:"type:text" db:"error"`
	AttemptedAt time.Time      `gorm:"not null;index:idx_delivery_attempts_user_at,priority:2" db:"attempted_at"`
}

func (DeliveryAttempt) TableName() string { return "delivery_attempts" }

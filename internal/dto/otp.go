package dto

import (
	"time"

	"otp/internal/domain"
)

type RequestOTPRequest struct {
	Channel string `json:"channel"`
	Contact string `json:"contact"`
}

type RequestOTPResponse struct {
	ChallengeID string    `json:"challengeId"`
	Channel     string    `json:"channel"`
	Contact     string    `json:"contact"` // masked
	Provider    string    `json:"provider"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type VerifyOTPRequest struct {
	Code string `json:"code"`
}

type VerifyOTPResponse struct {
	Verified          bool   `json:"verified"`
	Status            string `json:"status"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

type AttemptView struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challengeId,omitempty"`
	Channel     string    `json:"channel"`
	Provider    string    `json:"provider"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

type DeliveryHistory struct {
	Attempts    []AttemptView `json:"attempts"`
	Total       int           `json:"total"`
	Delivered   int           `json:"delivered"`
	SuccessRate float64       `json:"successRate"`
}

func NewAttemptView(a domain.DeliveryAttempt) AttemptView {
	v := AttemptView{
		ID:          a.ID.String(),
		Channel:     string(a.Channel),
		Provider:    a.Provider,
		Outcome:     string(a.Outcome),
		AttemptedAt: a.AttemptedAt,
	}
	if a.ChallengeID != nil {
		v.ChallengeID = a.ChallengeID.String()
	}
	if a.Error != nil {
		v.Error = *a.Error
	}
	return v
}

package service

import (
	"context"
	"time"

	"otp/internal/domain"
	"otp/internal/dto"
)

// OTPService is the lifecycle manager for verification challenges:
// issuance with provider failover, verification, connectivity tests
// and delivery history. The surrounding authentication flow calls
// RequestOTP/VerifyOTP and owns session issuance after a verify.
type OTPService interface {
	RequestOTP(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (*dto.RequestOTPResponse, error)
	VerifyOTP(ctx context.Context, userID domain.UserID, code string) (*dto.VerifyOTPResponse, error)
	TestDelivery(ctx context.Context, channel domain.Channel, contactValue string) ([]dto.ProviderTestResult, error)
	GetHistory(ctx context.Context, userID domain.UserID, limit int, window time.Duration) (*dto.DeliveryHistory, error)
	GetChallenge(ctx context.Context, userID domain.UserID, id domain.ChallengeID) (*domain.OTPChallenge, []domain.DeliveryAttempt, error)
	ExpireStale(ctx context.Context) (int64, error)
}

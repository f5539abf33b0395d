package service

import (
	"context"

	"otp/internal/domain"
	"otp/internal/dto"
)

type DiagnosticsService interface {
	GetDiagnostics(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (*dto.DiagnosticsResponse, error)
	TestConnectivity(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (*dto.ConnectivityTestResponse, error)
	SubmitReport(ctx context.Context, userID domain.UserID, req dto.DiagnosticReportRequest) (*dto.DiagnosticTicket, error)
	DeliveryTroubleshooting(ctx context.Context, userID domain.UserID, id domain.ChallengeID) (*dto.DeliveryTroubleshootingResponse, error)
}

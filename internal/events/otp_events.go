package events

import (
	"time"

	"otp/internal/domain"
)

// Audit actions recorded for every boundary operation.
const (
	ActionOTPRequested      = "otp.requested"
	ActionOTPVerified       = "otp.verified"
	ActionDeliveryFailed    = "otp.delivery_failed"
	ActionConnectivityTest  = "diagnostics.connectivity_test"
	ActionDiagnosticsViewed = "diagnostics.viewed"
	ActionReportSubmitted   = "diagnostics.report_submitted"
)

// AuditEvent is the fire-and-forget record handed to the audit sink.
type AuditEvent struct {
	UserID   *domain.UserID
	Action   string
	Success  bool
	Metadata map[string]any
	At       time.Time
}

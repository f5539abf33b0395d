package impl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"otp/internal/contact"
	"otp/internal/domain"
	"otp/internal/dto"
	"otp/internal/events"
	"otp/internal/observability/metrics"
	"otp/internal/ratelimit"
	"otp/internal/service"
)

// healthSource is the slice of the registry diagnostics consumes.
type healthSource interface {
	Snapshot() domain.HealthSnapshot
}

type DiagnosticsConfig struct {
	Lookback     time.Duration
	HistoryLimit int
}

func (c DiagnosticsConfig) withDefaults() DiagnosticsConfig {
	if c.Lookback <= 0 {
		c.Lookback = 24 * time.Hour
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// DiagnosticsServiceImpl turns registry health and delivery history
// into recommendations, troubleshooting steps and escalation paths.
// It never fails on missing data: when history cannot be loaded it
// degrades to health-only guidance.
type DiagnosticsServiceImpl struct {
	health    healthSource
	otp       service.OTPService
	limiter   *ratelimit.Limiter
	directory service.UserDirectory
	audit     service.AuditSink
	cfg       DiagnosticsConfig
	now       func() time.Time
}

func NewDiagnosticsService(health healthSource, otp service.OTPService, limiter *ratelimit.Limiter, directory service.UserDirectory, audit service.AuditSink, cfg DiagnosticsConfig) *DiagnosticsServiceImpl {
	return &DiagnosticsServiceImpl{
		health:    health,
		otp:       otp,
		limiter:   limiter,
		directory: directory,
		audit:     audit,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

func (s *DiagnosticsServiceImpl) GetDiagnostics(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (*dto.DiagnosticsResponse, error) {
	health := s.health.Snapshot()

	history, err := s.otp.GetHistory(ctx, userID, s.cfg.HistoryLimit, s.cfg.Lookback)
	if err != nil {
		slog.Warn("diagnostics history unavailable, degrading", "user_id", userID, "error", err)
		history = nil
	}

	in := diagInput{health: health, history: history, channel: channel}
	recs := evalRecommendations(in)

	// A malformed contact supplied alongside the query is itself a
	// diagnosis.
	if channel.Valid() && contactValue != "" {
		if _, cerr := contact.Normalize(channel, contactValue); cerr != nil {
			recs = append(recs, dto.Recommendation{
				Severity: "warning",
				Title:    "Contact value looks malformed",
				Detail:   fmt.Sprintf("The supplied %s contact is not in a deliverable format.", channel),
				Tips:     channelTips(channel),
			})
		}
	}

	resp := &dto.DiagnosticsResponse{
		SystemHealth:    systemHealthView(health),
		UserHistory:     history,
		Recommendations: recs,
		Troubleshooting: matchTroubleshooting(attemptErrors(history)),
		EscalationPaths: escalationPaths(in),
	}

	s.audit.Record(ctx, events.AuditEvent{
		UserID:  &userID,
		Action:  events.ActionDiagnosticsViewed,
		Success: true,
		Metadata: map[string]any{
			"channel":           string(channel),
			"healthy_providers": health.HealthyProviders,
		},
		At: s.now().UTC(),
	})
	return resp, nil
}

func (s *DiagnosticsServiceImpl) TestConnectivity(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (*dto.ConnectivityTestResponse, error) {
	if !channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}

	decision := s.limiter.Check("test:" + userID.String())
	if !decision.Allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("connectivity_test").Inc()
		return nil, &domain.RateLimitError{RetryAfter: decision.RetryAfter}
	}

	normalized, err := contact.Normalize(channel, contactValue)
	if err != nil {
		return nil, err
	}
	owned, err := s.directory.OwnsContact(ctx, userID, channel, normalized)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, domain.ErrContactMismatch
	}

	results, err := s.otp.TestDelivery(ctx, channel, normalized)
	if err != nil {
		return nil, err
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	health := s.health.Snapshot()
	resp := &dto.ConnectivityTestResponse{
		Channel:         string(channel),
		Results:         results,
		Summary:         fmt.Sprintf("%d of %d providers tried delivered the test message", succeeded, len(results)),
		Recommendations: evalRecommendations(diagInput{health: health, channel: channel}),
	}

	s.audit.Record(ctx, events.AuditEvent{
		UserID:  &userID,
		Action:  events.ActionConnectivityTest,
		Success: succeeded > 0,
		Metadata: map[string]any{
			"channel":         string(channel),
			"providers_tried": len(results),
		},
		At: s.now().UTC(),
	})
	return resp, nil
}

var reportTypes = map[string]bool{
	"delivery_failure":   true,
	"verification_issue": true,
	"other":              true,
}

func (s *DiagnosticsServiceImpl) SubmitReport(ctx context.Context, userID domain.UserID, req dto.DiagnosticReportRequest) (*dto.DiagnosticTicket, error) {
	if !reportTypes[req.ReportType] || req.Description == "" {
		return nil, domain.ErrInvalidRequest
	}

	decision := s.limiter.Check("report:" + userID.String())
	if !decision.Allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("diagnostic_report").Inc()
		return nil, &domain.RateLimitError{RetryAfter: decision.RetryAfter}
	}

	health := s.health.Snapshot()
	history, err := s.otp.GetHistory(ctx, userID, s.cfg.HistoryLimit, s.cfg.Lookback)
	if err != nil {
		history = nil
	}
	in := diagInput{health: health, history: history}

	priority, expected := reportPriority(req.ReportType, in)
	ticket := &dto.DiagnosticTicket{
		TicketID:         uuid.New().String(),
		Priority:         priority,
		ExpectedResponse: expected,
		NextSteps:        reportNextSteps(priority),
	}

	s.audit.Record(ctx, events.AuditEvent{
		UserID:  &userID,
		Action:  events.ActionReportSubmitted,
		Success: true,
		Metadata: map[string]any{
			"ticket_id":   ticket.TicketID,
			"report_type": req.ReportType,
			"priority":    priority,
		},
		At: s.now().UTC(),
	})
	return ticket, nil
}

// reportPriority derives ticket priority from the same thresholds the
// rule engine uses, so two identical reports under identical system
// conditions always get the same answer.
func reportPriority(reportType string, in diagInput) (priority, expectedResponse string) {
	switch {
	case in.health.Outage():
		return "critical", "1 hour"
	case in.veryLowUserSuccess():
		return "high", "4 hours"
	case reportType == "delivery_failure" || reportType == "verification_issue":
		return "medium", "8 hours"
	default:
		return "low", "24 hours"
	}
}

func reportNextSteps(priority string) []string {
	steps := []string{
		"Keep your ticket ID for follow-up",
	}
	if priority == "critical" || priority == "high" {
		steps = append(steps, "The delivery team has been paged; no further action is needed")
	} else {
		steps = append(steps, "Support will reply by email", "You can keep using the alternate channel meanwhile")
	}
	return steps
}

func (s *DiagnosticsServiceImpl) DeliveryTroubleshooting(ctx context.Context, userID domain.UserID, id domain.ChallengeID) (*dto.DeliveryTroubleshootingResponse, error) {
	ch, attempts, err := s.otp.GetChallenge(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	views := make([]dto.AttemptView, 0, len(attempts))
	var errs []string
	for _, a := range attempts {
		views = append(views, dto.NewAttemptView(a))
		if a.Error != nil {
			errs = append(errs, *a.Error)
		}
	}

	health := s.health.Snapshot()
	in := diagInput{health: health, channel: ch.Channel}

	recs := evalRecommendations(in)
	recs = append(recs, statusRecommendation(ch))

	return &dto.DeliveryTroubleshootingResponse{
		ChallengeID:     ch.ID.String(),
		Status:          string(ch.Status),
		Channel:         string(ch.Channel),
		Attempts:        views,
		Recommendations: recs,
		NextSteps:       statusNextSteps(ch, matchTroubleshooting(errs)),
	}, nil
}

func statusRecommendation(ch *domain.OTPChallenge) dto.Recommendation {
	switch ch.Status {
	case domain.ChallengeFailed:
		return dto.Recommendation{
			Severity: "critical",
			Title:    fmt.Sprintf("Delivery over %s failed", ch.Channel),
			Detail:   "Every provider for this channel failed when this code was sent.",
			Tips:     []string{fmt.Sprintf("Request a new code over %s", ch.Channel.Alternate())},
		}
	case domain.ChallengeExpired:
		return dto.Recommendation{
			Severity: "info",
			Title:    "This code has expired",
			Detail:   "Codes are valid for a few minutes only.",
			Tips:     []string{"Request a new code"},
		}
	case domain.ChallengeVerified:
		return dto.Recommendation{
			Severity: "info",
			Title:    "This code was verified",
			Detail:   "No action is needed for this delivery.",
		}
	default:
		return dto.Recommendation{
			Severity: "info",
			Title:    "Code is on its way",
			Detail:   "The code was handed to a provider and is still valid.",
			Tips:     channelTips(ch.Channel),
		}
	}
}

func statusNextSteps(ch *domain.OTPChallenge, entries []dto.TroubleshootingEntry) []string {
	var steps []string
	for _, e := range entries {
		steps = append(steps, e.Steps...)
	}
	if ch.Status == domain.ChallengeFailed || ch.Status == domain.ChallengeExpired {
		steps = append(steps, "Request a fresh code to continue")
	}
	if len(steps) == 0 {
		steps = genericTroubleshootingSteps
	}
	return steps
}

func systemHealthView(h domain.HealthSnapshot) dto.SystemHealth {
	out := dto.SystemHealth{
		TotalProviders:   h.TotalProviders,
		HealthyProviders: h.HealthyProviders,
		Providers:        make([]dto.ProviderHealth, 0, len(h.Providers)),
	}
	for _, p := range h.Providers {
		channels := make([]string, 0, len(p.Channels))
		for _, c := range p.Channels {
			channels = append(channels, string(c))
		}
		out.Providers = append(out.Providers, dto.ProviderHealth{
			Name:                p.Name,
			DisplayName:         p.DisplayName,
			Channels:            channels,
			Priority:            p.Priority,
			Healthy:             p.Healthy,
			ConsecutiveFailures: p.ConsecutiveFailures,
			LastHealthChange:    p.LastHealthChange,
		})
	}
	return out
}

func attemptErrors(h *dto.DeliveryHistory) []string {
	if h == nil {
		return nil
	}
	var errs []string
	for _, a := range h.Attempts {
		if a.Error != "" {
			errs = append(errs, a.Error)
		}
	}
	return errs
}

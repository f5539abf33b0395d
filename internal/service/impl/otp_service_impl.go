package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"otp/internal/contact"
	"otp/internal/domain"
	"otp/internal/dto"
	"otp/internal/events"
	"otp/internal/observability/metrics"
	"otp/internal/provider"
	"otp/internal/service"
	"otp/internal/store"
)

// providerCatalog is the slice of the registry the lifecycle manager
// consumes.
type providerCatalog interface {
	ListAvailable(ch domain.Channel) []domain.ServiceDescriptor
	ReportOutcome(name string, success bool)
}

type OTPConfig struct {
	CodeLength        int
	CodeTTL           time.Duration
	MaxVerifyAttempts int
	ProviderTimeout   time.Duration
}

func (c OTPConfig) withDefaults() OTPConfig {
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = 5 * time.Minute
	}
	if c.MaxVerifyAttempts <= 0 {
		c.MaxVerifyAttempts = 5
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 5 * time.Second
	}
	return c
}

type OTPServiceImpl struct {
	store     *store.Store
	catalog   providerCatalog
	providers provider.Set
	digester  *codeDigester
	audit     service.AuditSink
	cfg       OTPConfig
	now       func() time.Time
}

func NewOTPService(st *store.Store, catalog providerCatalog, providers provider.Set, audit service.AuditSink, cfg OTPConfig) *OTPServiceImpl {
	return &OTPServiceImpl{
		store:     st,
		catalog:   catalog,
		providers: providers,
		digester:  newCodeDigester(),
		audit:     audit,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// RequestOTP issues a fresh challenge and delivers its code through
// the first provider that accepts it. Any previously pending challenge
// for the same (user, channel) is invalidated first, so at most one is
// ever in flight.
func (s *OTPServiceImpl) RequestOTP(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (*dto.RequestOTPResponse, error) {
	if !channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}
	to, err := contact.Normalize(channel, contactValue)
	if err != nil {
		return nil, err
	}

	code, err := s.digester.Generate(s.cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	digest, salt, err := s.digester.Digest(code)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ch := &domain.OTPChallenge{
		ID:          domain.NewChallengeID(),
		UserID:      userID,
		Channel:     channel,
		Contact:     to,
		CodeDigest:  digest,
		CodeSalt:    salt,
		Status:      domain.ChallengePending,
		MaxAttempts: s.cfg.MaxVerifyAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
		UpdatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Challenges().InvalidatePending(ctx, userID, channel, now); err != nil {
			return err
		}
		return tx.Challenges().Create(ctx, ch)
	})
	if err != nil {
		return nil, err
	}

	// The failover loop runs outside any transaction or lock: each
	// provider call may block on network I/O.
	msg := provider.Message{
		Channel: channel,
		To:      to,
		Subject: otpMessageSubject(channel),
		Body:    otpMessageBody(channel, code, s.cfg.CodeTTL),
	}
	chosen, _, err := s.deliver(ctx, msg, userID, &ch.ID, true)
	if err != nil {
		if setErr := s.store.Challenges().SetStatus(ctx, ch.ID, domain.ChallengeFailed, s.now().UTC()); setErr != nil {
			slog.Error("mark challenge failed", "challenge_id", ch.ID, "error", setErr)
		}
		metrics.OTPRequestsTotal.WithLabelValues(string(channel), "failed").Inc()
		s.audit.Record(ctx, events.AuditEvent{
			UserID:  &userID,
			Action:  events.ActionDeliveryFailed,
			Success: false,
			Metadata: map[string]any{
				"challenge_id": ch.ID.String(),
				"channel":      string(channel),
			},
			At: now,
		})
		return nil, err
	}

	metrics.OTPRequestsTotal.WithLabelValues(string(channel), "sent").Inc()
	s.audit.Record(ctx, events.AuditEvent{
		UserID:  &userID,
		Action:  events.ActionOTPRequested,
		Success: true,
		Metadata: map[string]any{
			"challenge_id": ch.ID.String(),
			"channel":      string(channel),
			"provider":     chosen,
		},
		At: now,
	})

	return &dto.RequestOTPResponse{
		ChallengeID: ch.ID.String(),
		Channel:     string(channel),
		Contact:     contact.Mask(channel, to),
		Provider:    chosen,
		ExpiresAt:   ch.ExpiresAt,
	}, nil
}

// deliver tries providers in registry order and stops at the first
// success. Every call is reported back to the registry; when record is
// true every call is also appended to the delivery attempt log.
func (s *OTPServiceImpl) deliver(ctx context.Context, msg provider.Message, userID domain.UserID, challengeID *domain.ChallengeID, record bool) (string, []dto.ProviderTestResult, error) {
	descs := s.catalog.ListAvailable(msg.Channel)
	if len(descs) == 0 {
		return "", nil, domain.ErrNoProvidersForChannel
	}

	var results []dto.ProviderTestResult
	var failures []domain.ProviderFailure

	for _, desc := range descs {
		p, ok := s.providers[desc.Name]
		if !ok {
			slog.Warn("registered provider has no transport", "provider", desc.Name)
			continue
		}

		attemptedAt := s.now().UTC()
		started := time.Now()
		cctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		sendErr := p.Send(cctx, msg)
		cancel()
		latency := time.Since(started)

		if sendErr != nil && errors.Is(sendErr, context.DeadlineExceeded) {
			sendErr = fmt.Errorf("provider %s timed out after %s", desc.Name, s.cfg.ProviderTimeout)
		}

		outcome := domain.OutcomeSent
		var errText *string
		if sendErr != nil {
			outcome = domain.OutcomeFailed
			t := sendErr.Error()
			errText = &t
		}

		if record {
			attempt := &domain.DeliveryAttempt{
				ChallengeID: challengeID,
				UserID:      userID,
				Channel:     msg.Channel,
				Provider:    desc.Name,
				Outcome:     outcome,
				Error:       errText,
				AttemptedAt: attemptedAt,
			}
			if aerr := s.store.Attempts().Append(ctx, attempt); aerr != nil {
				slog.Error("append delivery attempt", "provider", desc.Name, "error", aerr)
			}
		}

		s.catalog.ReportOutcome(desc.Name, sendErr == nil)
		metrics.DeliveryAttemptsTotal.WithLabelValues(desc.Name, string(outcome)).Inc()

		result := dto.ProviderTestResult{
			Provider:  desc.Name,
			Success:   sendErr == nil,
			LatencyMS: latency.Milliseconds(),
		}
		if sendErr != nil {
			result.Error = sendErr.Error()
		}
		results = append(results, result)

		if sendErr == nil {
			return desc.Name, results, nil
		}
		failures = append(failures, domain.ProviderFailure{Provider: desc.Name, Reason: sendErr.Error()})
	}

	return "", results, &domain.AllProvidersFailedError{Channel: msg.Channel, Failures: failures}
}

// VerifyOTP checks a code against the caller's newest pending
// challenge. Expiry and attempt exhaustion are detected here and move
// the challenge into its terminal status.
func (s *OTPServiceImpl) VerifyOTP(ctx context.Context, userID domain.UserID, code string) (*dto.VerifyOTPResponse, error) {
	now := s.now().UTC()
	challenges := s.store.Challenges()

	ch, err := challenges.GetPendingByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, err
	}

	if ch.ExpiredAt(now) {
		if err := challenges.SetStatus(ctx, ch.ID, domain.ChallengeExpired, now); err != nil {
			return nil, err
		}
		metrics.OTPVerificationsTotal.WithLabelValues("expired").Inc()
		s.recordVerify(ctx, userID, ch, false, "expired", now)
		return nil, domain.ErrOTPExpired
	}

	attempts := ch.Attempts + 1
	if attempts > ch.MaxAttempts {
		if err := challenges.SetStatus(ctx, ch.ID, domain.ChallengeFailed, now); err != nil {
			return nil, err
		}
		metrics.OTPVerificationsTotal.WithLabelValues("max_attempts").Inc()
		s.recordVerify(ctx, userID, ch, false, "max_attempts", now)
		return nil, domain.ErrMaxAttemptsExceeded
	}
	if err := challenges.SetAttempts(ctx, ch.ID, attempts, now); err != nil {
		return nil, err
	}

	if !s.digester.Verify(code, ch.CodeSalt, ch.CodeDigest) {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		s.recordVerify(ctx, userID, ch, false, "invalid", now)
		return nil, domain.ErrOTPInvalid
	}

	if err := challenges.SetStatus(ctx, ch.ID, domain.ChallengeVerified, now); err != nil {
		return nil, err
	}
	metrics.OTPVerificationsTotal.WithLabelValues("verified").Inc()
	s.recordVerify(ctx, userID, ch, true, "verified", now)

	return &dto.VerifyOTPResponse{
		Verified:          true,
		Status:            string(domain.ChallengeVerified),
		AttemptsRemaining: ch.MaxAttempts - attempts,
	}, nil
}

func (s *OTPServiceImpl) recordVerify(ctx context.Context, userID domain.UserID, ch *domain.OTPChallenge, success bool, result string, at time.Time) {
	s.audit.Record(ctx, events.AuditEvent{
		UserID:  &userID,
		Action:  events.ActionOTPVerified,
		Success: success,
		Metadata: map[string]any{
			"challenge_id": ch.ID.String(),
			"channel":      string(ch.Channel),
			"result":       result,
		},
		At: at,
	})
}

// TestDelivery runs the failover loop with a synthetic message and no
// persisted challenge. Provider failures are data here, not errors:
// the per-provider results are the whole point.
func (s *OTPServiceImpl) TestDelivery(ctx context.Context, channel domain.Channel, contactValue string) ([]dto.ProviderTestResult, error) {
	if !channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}
	to, err := contact.Normalize(channel, contactValue)
	if err != nil {
		return nil, err
	}

	msg := provider.Message{
		Channel: channel,
		To:      to,
		Subject: otpMessageSubject(channel),
		Body:    connectivityTestBody,
	}
	_, results, err := s.deliver(ctx, msg, uuid.Nil, nil, false)
	if err != nil {
		var apf *domain.AllProvidersFailedError
		if !errors.As(err, &apf) {
			return nil, err
		}
	}
	return results, nil
}

func (s *OTPServiceImpl) GetHistory(ctx context.Context, userID domain.UserID, limit int, window time.Duration) (*dto.DeliveryHistory, error) {
	since := s.now().UTC().Add(-window)
	attempts, err := s.store.Attempts().ListByUser(ctx, userID, since, limit)
	if err != nil {
		return nil, err
	}

	h := &dto.DeliveryHistory{Attempts: make([]dto.AttemptView, 0, len(attempts))}
	for _, a := range attempts {
		h.Attempts = append(h.Attempts, dto.NewAttemptView(a))
		h.Total++
		if a.Outcome.Success() {
			h.Delivered++
		}
	}
	if h.Total > 0 {
		h.SuccessRate = float64(h.Delivered) / float64(h.Total)
	}
	return h, nil
}

// GetChallenge loads a challenge with its attempt trail. Challenges
// belonging to other users read as not found.
func (s *OTPServiceImpl) GetChallenge(ctx context.Context, userID domain.UserID, id domain.ChallengeID) (*domain.OTPChallenge, []domain.DeliveryAttempt, error) {
	ch, err := s.store.Challenges().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, domain.ErrChallengeNotFound
		}
		return nil, nil, err
	}
	if ch.UserID != userID {
		return nil, nil, domain.ErrChallengeNotFound
	}
	attempts, err := s.store.Attempts().ListByChallenge(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ch, attempts, nil
}

// ExpireStale sweeps pending challenges past their expiry.
func (s *OTPServiceImpl) ExpireStale(ctx context.Context) (int64, error) {
	return s.store.Challenges().ExpireOverdue(ctx, s.now().UTC())
}

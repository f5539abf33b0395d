package impl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"otp/internal/domain"
	"otp/internal/events"
	"otp/internal/observability/metrics"
	"otp/internal/provider"
	"otp/internal/registry"
	"otp/internal/store"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("impl-test")
	os.Exit(m.Run())
}

type stubProvider struct {
	mu    sync.Mutex
	name  string
	err   error
	calls int
	sent  []provider.Message
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Send(_ context.Context, msg provider.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.sent = append(p.sent, msg)
	return p.err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *stubProvider) lastBody() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return ""
	}
	return p.sent[len(p.sent)-1].Body
}

type captureAudit struct {
	mu     sync.Mutex
	events []events.AuditEvent
}

func (a *captureAudit) Record(_ context.Context, ev events.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return st
}

var codeRe = regexp.MustCompile(`\d{6}`)

func setupOTP(t *testing.T, providers map[string]domain.ServiceDescriptor, transports provider.Set) (*OTPServiceImpl, *registry.Registry, *store.Store, *captureAudit) {
	t.Helper()
	st := openTestStore(t)
	reg := registry.New(3)
	for _, desc := range providers {
		reg.Register(desc)
	}
	audit := &captureAudit{}
	svc := NewOTPService(st, reg, transports, audit, OTPConfig{
		CodeTTL:           5 * time.Minute,
		MaxVerifyAttempts: 3,
		ProviderTimeout:   time.Second,
	})
	return svc, reg, st, audit
}

func smsDescriptor(name string, priority int) domain.ServiceDescriptor {
	return domain.ServiceDescriptor{
		Name:     name,
		Channels: []domain.Channel{domain.ChannelSMS},
		Priority: priority,
	}
}

func TestRequestAndVerifyRoundTrip(t *testing.T) {
	twilio := &stubProvider{name: "twilio"}
	svc, _, st, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{
			"twilio": smsDescriptor("twilio", 1),
			"smtp":   {Name: "smtp", Channels: []domain.Channel{domain.ChannelEmail}, Priority: 1},
		},
		provider.NewSet(twilio, &stubProvider{name: "smtp"}),
	)

	userID := uuid.New()
	ctx := context.Background()

	res, err := svc.RequestOTP(ctx, userID, domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.Provider != "twilio" {
		t.Fatalf("expected twilio to deliver, got %s", res.Provider)
	}
	if res.Contact == "+14155550123" {
		t.Fatal("response must not echo the raw contact")
	}

	attempts, err := st.Attempts().ListByUser(ctx, userID, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != domain.OutcomeSent {
		t.Fatalf("expected one sent attempt, got %+v", attempts)
	}

	code := codeRe.FindString(twilio.lastBody())
	if code == "" {
		t.Fatalf("no code in message body %q", twilio.lastBody())
	}

	verify, err := svc.VerifyOTP(ctx, userID, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verify.Verified || verify.Status != string(domain.ChallengeVerified) {
		t.Fatalf("unexpected verify response: %+v", verify)
	}

	// A verified challenge cannot be verified again.
	if _, err := svc.VerifyOTP(ctx, userID, code); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected not found after terminal state, got %v", err)
	}
}

func TestFailoverSkipsUnhealthyAndStopsAtFirstSuccess(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("a down")}
	b := &stubProvider{name: "b"}
	c := &stubProvider{name: "c"}
	svc, reg, _, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{
			"a": smsDescriptor("a", 1),
			"b": smsDescriptor("b", 2),
			"c": smsDescriptor("c", 3),
		},
		provider.NewSet(a, b, c),
	)

	// Condemn provider a so it sorts behind the healthy ones.
	for i := 0; i < 3; i++ {
		reg.ReportOutcome("a", false)
	}

	if _, err := svc.RequestOTP(context.Background(), uuid.New(), domain.ChannelSMS, "+14155550123"); err != nil {
		t.Fatalf("request: %v", err)
	}

	if b.callCount() != 1 {
		t.Fatalf("expected b to be tried first, calls=%d", b.callCount())
	}
	if a.callCount() != 0 || c.callCount() != 0 {
		t.Fatalf("a and c must not be called when b succeeds (a=%d c=%d)", a.callCount(), c.callCount())
	}
}

func TestFailoverReachesUnhealthyLastResort(t *testing.T) {
	a := &stubProvider{name: "a"} // unhealthy in registry but actually recovered
	b := &stubProvider{name: "b", err: errors.New("b down")}
	c := &stubProvider{name: "c", err: errors.New("c down")}
	svc, reg, _, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{
			"a": smsDescriptor("a", 1),
			"b": smsDescriptor("b", 2),
			"c": smsDescriptor("c", 3),
		},
		provider.NewSet(a, b, c),
	)
	for i := 0; i < 3; i++ {
		reg.ReportOutcome("a", false)
	}

	res, err := svc.RequestOTP(context.Background(), uuid.New(), domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.Provider != "a" {
		t.Fatalf("expected last-resort provider a, got %s", res.Provider)
	}
	if b.callCount() != 1 || c.callCount() != 1 {
		t.Fatalf("healthy providers must be tried before the unhealthy tail (b=%d c=%d)", b.callCount(), c.callCount())
	}

	// The success also restores a's health.
	snap := reg.Snapshot()
	for _, p := range snap.Providers {
		if p.Name == "a" && !p.Healthy {
			t.Fatal("successful call must restore provider health")
		}
	}
}

func TestAllProvidersFailed(t *testing.T) {
	smtp := &stubProvider{name: "smtp", err: errors.New("connection refused")}
	svc, _, st, audit := setupOTP(t,
		map[string]domain.ServiceDescriptor{
			"smtp": {Name: "smtp", Channels: []domain.Channel{domain.ChannelEmail}, Priority: 1},
		},
		provider.NewSet(smtp),
	)

	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.RequestOTP(ctx, userID, domain.ChannelEmail, "user2@example.com")
	var apf *domain.AllProvidersFailedError
	if !errors.As(err, &apf) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if len(apf.Failures) != 1 || apf.Failures[0].Provider != "smtp" {
		t.Fatalf("unexpected failure list: %+v", apf.Failures)
	}

	// The challenge is terminal and the attempt is on record.
	ch, err := st.Challenges().GetPendingByUser(ctx, userID)
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("no challenge should stay pending, got %+v err=%v", ch, err)
	}
	attempts, _ := st.Attempts().ListByUser(ctx, userID, time.Time{}, 0)
	if len(attempts) != 1 || attempts[0].Outcome != domain.OutcomeFailed || attempts[0].Error == nil {
		t.Fatalf("expected one failed attempt with error, got %+v", attempts)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.events) == 0 || audit.events[len(audit.events)-1].Action != events.ActionDeliveryFailed {
		t.Fatalf("expected delivery-failed audit event, got %+v", audit.events)
	}
}

func TestRepeatedRequestsKeepSinglePending(t *testing.T) {
	twilio := &stubProvider{name: "twilio"}
	svc, _, st, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(twilio),
	)

	userID := uuid.New()
	ctx := context.Background()

	first, err := svc.RequestOTP(ctx, userID, domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := svc.RequestOTP(ctx, userID, domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	pending, err := st.Challenges().GetPendingByUser(ctx, userID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if pending.ID.String() != second.ChallengeID {
		t.Fatalf("pending challenge should be the newest one")
	}

	firstID, _ := uuid.Parse(first.ChallengeID)
	old, err := st.Challenges().GetByID(ctx, firstID)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if old.Status != domain.ChallengeExpired {
		t.Fatalf("prior pending challenge must be invalidated, got %s", old.Status)
	}
}

func TestVerifyAttemptsExhaust(t *testing.T) {
	twilio := &stubProvider{name: "twilio"}
	svc, _, st, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(twilio),
	)

	userID := uuid.New()
	ctx := context.Background()

	res, err := svc.RequestOTP(ctx, userID, domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Max attempts is 3: three wrong codes are tolerated...
	for i := 0; i < 3; i++ {
		if _, err := svc.VerifyOTP(ctx, userID, "000000"); !errors.Is(err, domain.ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}
	// ...the fourth is the exhaustion error, never another invalid-code.
	if _, err := svc.VerifyOTP(ctx, userID, "000000"); !errors.Is(err, domain.ErrMaxAttemptsExceeded) {
		t.Fatalf("expected max attempts exceeded, got %v", err)
	}

	id, _ := uuid.Parse(res.ChallengeID)
	ch, err := st.Challenges().GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if ch.Status != domain.ChallengeFailed {
		t.Fatalf("exhausted challenge must be failed, got %s", ch.Status)
	}
	if ch.Attempts > ch.MaxAttempts {
		t.Fatalf("attempt counter %d exceeds max %d", ch.Attempts, ch.MaxAttempts)
	}
}

func TestVerifyExpired(t *testing.T) {
	twilio := &stubProvider{name: "twilio"}
	svc, _, st, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(twilio),
	)

	userID := uuid.New()
	ctx := context.Background()

	res, err := svc.RequestOTP(ctx, userID, domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	code := codeRe.FindString(twilio.lastBody())
	if _, err := svc.VerifyOTP(ctx, userID, code); !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	id, _ := uuid.Parse(res.ChallengeID)
	ch, _ := st.Challenges().GetByID(ctx, id)
	if ch.Status != domain.ChallengeExpired {
		t.Fatalf("expected expired status, got %s", ch.Status)
	}
}

func TestVerifyWithoutChallenge(t *testing.T) {
	svc, _, _, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(&stubProvider{name: "twilio"}),
	)
	if _, err := svc.VerifyOTP(context.Background(), uuid.New(), "123456"); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequestRejectsMalformedContact(t *testing.T) {
	svc, _, _, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(&stubProvider{name: "twilio"}),
	)
	if _, err := svc.RequestOTP(context.Background(), uuid.New(), domain.ChannelSMS, "not-a-phone"); !errors.Is(err, domain.ErrInvalidContact) {
		t.Fatalf("expected invalid contact, got %v", err)
	}
	if _, err := svc.RequestOTP(context.Background(), uuid.New(), domain.Channel("fax"), "+14155550123"); !errors.Is(err, domain.ErrInvalidChannel) {
		t.Fatalf("expected invalid channel, got %v", err)
	}
}

func TestTestDeliveryDoesNotPersist(t *testing.T) {
	failing := &stubProvider{name: "a", err: errors.New("a down")}
	working := &stubProvider{name: "b"}
	svc, _, st, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{
			"a": smsDescriptor("a", 1),
			"b": smsDescriptor("b", 2),
		},
		provider.NewSet(failing, working),
	)

	results, err := svc.TestDelivery(context.Background(), domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("test delivery: %v", err)
	}
	if len(results) != 2 || results[0].Success || !results[1].Success {
		t.Fatalf("unexpected results: %+v", results)
	}

	var count int64
	if err := st.DB.Model(&domain.DeliveryAttempt{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("connectivity tests must not write the attempt log, found %d rows", count)
	}
}

func TestGetHistorySuccessRate(t *testing.T) {
	svc, _, st, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(&stubProvider{name: "twilio"}),
	)

	userID := uuid.New()
	ctx := context.Background()
	now := time.Now().UTC()

	reason := "carrier rejected"
	seed := []domain.DeliveryAttempt{
		{UserID: userID, Channel: domain.ChannelSMS, Provider: "twilio", Outcome: domain.OutcomeSent, AttemptedAt: now.Add(-3 * time.Hour)},
		{UserID: userID, Channel: domain.ChannelSMS, Provider: "twilio", Outcome: domain.OutcomeDelivered, AttemptedAt: now.Add(-2 * time.Hour)},
		{UserID: userID, Channel: domain.ChannelSMS, Provider: "twilio", Outcome: domain.OutcomeFailed, Error: &reason, AttemptedAt: now.Add(-1 * time.Hour)},
		{UserID: userID, Channel: domain.ChannelSMS, Provider: "twilio", Outcome: domain.OutcomeFailed, Error: &reason, AttemptedAt: now.Add(-30 * time.Minute)},
		// Outside the window, must not count.
		{UserID: userID, Channel: domain.ChannelSMS, Provider: "twilio", Outcome: domain.OutcomeFailed, Error: &reason, AttemptedAt: now.Add(-48 * time.Hour)},
	}
	for i := range seed {
		if err := st.Attempts().Append(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	h, err := svc.GetHistory(ctx, userID, 50, 24*time.Hour)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if h.Total != 4 || h.Delivered != 2 {
		t.Fatalf("unexpected history: total=%d delivered=%d", h.Total, h.Delivered)
	}
	if h.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %v", h.SuccessRate)
	}
}

func TestGetChallengeOwnership(t *testing.T) {
	twilio := &stubProvider{name: "twilio"}
	svc, _, _, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(twilio),
	)

	owner := uuid.New()
	ctx := context.Background()
	res, err := svc.RequestOTP(ctx, owner, domain.ChannelSMS, "+14155550123")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	id, _ := uuid.Parse(res.ChallengeID)

	if _, _, err := svc.GetChallenge(ctx, owner, id); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, _, err := svc.GetChallenge(ctx, uuid.New(), id); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("foreign challenge must read as not found, got %v", err)
	}
}

func TestExpireStaleSweep(t *testing.T) {
	twilio := &stubProvider{name: "twilio"}
	svc, _, _, _ := setupOTP(t,
		map[string]domain.ServiceDescriptor{"twilio": smsDescriptor("twilio", 1)},
		provider.NewSet(twilio),
	)

	ctx := context.Background()
	if _, err := svc.RequestOTP(ctx, uuid.New(), domain.ChannelSMS, "+14155550123"); err != nil {
		t.Fatalf("request: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	n, err := svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expired challenge, got %d", n)
	}
}

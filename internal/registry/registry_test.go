package registry

import (
	"os"
	"testing"
	"time"

	"otp/internal/domain"
	"otp/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("registry-test")
	os.Exit(m.Run())
}

func newTestRegistry() *Registry {
	r := New(3)
	r.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	r.Register(domain.ServiceDescriptor{Name: "twilio", DisplayName: "Twilio", Channels: []domain.Channel{domain.ChannelSMS}, Priority: 1})
	r.Register(domain.ServiceDescriptor{Name: "vonage", DisplayName: "Vonage", Channels: []domain.Channel{domain.ChannelSMS}, Priority: 2})
	r.Register(domain.ServiceDescriptor{Name: "smtp", DisplayName: "SMTP", Channels: []domain.Channel{domain.ChannelEmail}, Priority: 1})
	return r
}

func names(descs []domain.ServiceDescriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Name)
	}
	return out
}

func TestListAvailableFiltersByChannel(t *testing.T) {
	r := newTestRegistry()

	sms := names(r.ListAvailable(domain.ChannelSMS))
	if len(sms) != 2 || sms[0] != "twilio" || sms[1] != "vonage" {
		t.Fatalf("unexpected sms providers: %v", sms)
	}

	email := names(r.ListAvailable(domain.ChannelEmail))
	if len(email) != 1 || email[0] != "smtp" {
		t.Fatalf("unexpected email providers: %v", email)
	}
}

func TestUnhealthyProvidersSortLast(t *testing.T) {
	r := newTestRegistry()

	for i := 0; i < 3; i++ {
		r.ReportOutcome("twilio", false)
	}

	sms := names(r.ListAvailable(domain.ChannelSMS))
	if len(sms) != 2 {
		t.Fatalf("expected unhealthy provider to stay listed, got %v", sms)
	}
	if sms[0] != "vonage" || sms[1] != "twilio" {
		t.Fatalf("expected healthy-first ordering, got %v", sms)
	}
}

func TestAllUnhealthyStillListedByPriority(t *testing.T) {
	r := newTestRegistry()

	for _, name := range []string{"twilio", "vonage"} {
		for i := 0; i < 3; i++ {
			r.ReportOutcome(name, false)
		}
	}

	sms := names(r.ListAvailable(domain.ChannelSMS))
	if len(sms) != 2 || sms[0] != "twilio" || sms[1] != "vonage" {
		t.Fatalf("expected full priority-ordered list as last resort, got %v", sms)
	}
}

func TestHealthAsymmetry(t *testing.T) {
	r := newTestRegistry()

	r.ReportOutcome("twilio", false)
	snap := r.Snapshot()
	if snap.Providers[0].Name != "twilio" || !snap.Providers[0].Healthy {
		t.Fatalf("single failure must not flip health: %+v", snap.Providers[0])
	}
	if snap.Providers[0].ConsecutiveFailures != 1 {
		t.Fatalf("expected failure counter 1, got %d", snap.Providers[0].ConsecutiveFailures)
	}

	r.ReportOutcome("twilio", false)
	r.ReportOutcome("twilio", false)
	snap = r.Snapshot()
	if snap.Providers[0].Healthy {
		t.Fatal("three consecutive failures must flip provider unhealthy")
	}
	if snap.HealthyProviders != 2 {
		t.Fatalf("expected 2 healthy providers, got %d", snap.HealthyProviders)
	}

	// One success restores health immediately and zeroes the counter.
	r.ReportOutcome("twilio", true)
	snap = r.Snapshot()
	if !snap.Providers[0].Healthy || snap.Providers[0].ConsecutiveFailures != 0 {
		t.Fatalf("success must restore health immediately: %+v", snap.Providers[0])
	}
}

func TestSuccessResetsCounterBeforeThreshold(t *testing.T) {
	r := newTestRegistry()

	r.ReportOutcome("vonage", false)
	r.ReportOutcome("vonage", false)
	r.ReportOutcome("vonage", true)
	r.ReportOutcome("vonage", false)
	r.ReportOutcome("vonage", false)

	snap := r.Snapshot()
	for _, p := range snap.Providers {
		if p.Name == "vonage" {
			if !p.Healthy {
				t.Fatal("counter must reset on success, provider flipped too early")
			}
			if p.ConsecutiveFailures != 2 {
				t.Fatalf("expected counter 2 after reset, got %d", p.ConsecutiveFailures)
			}
		}
	}
}

func TestSnapshotCounts(t *testing.T) {
	r := newTestRegistry()
	snap := r.Snapshot()
	if snap.TotalProviders != 3 || snap.HealthyProviders != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Outage() || !snap.FullyHealthy() {
		t.Fatal("fresh registry must be fully healthy")
	}
}

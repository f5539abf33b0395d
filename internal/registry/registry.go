package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"otp/internal/domain"
	"otp/internal/observability/metrics"
)

const DefaultFailureThreshold = 3

// Registry is the catalog of delivery providers and the sole owner of
// their health state. Providers are registered once at startup; after
// that the provider set is immutable and only the per-provider health
// counters change. Each provider carries its own lock so concurrent
// outcome reports for different providers never contend.
type Registry struct {
	threshold int
	now       func() time.Time

	mu        sync.RWMutex // guards the map, not the states
	providers map[string]*providerState
	order     []string // registration order, for stable snapshots
}

type providerState struct {
	mu   sync.Mutex
	desc domain.ServiceDescriptor
}

func New(failureThreshold int) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &Registry{
		threshold: failureThreshold,
		now:       time.Now,
		providers: make(map[string]*providerState),
	}
}

// Register adds a provider to the catalog. New providers start healthy.
func (r *Registry) Register(desc domain.ServiceDescriptor) {
	desc.Healthy = true
	desc.ConsecutiveFailures = 0
	desc.LastHealthChange = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[desc.Name]; !exists {
		r.order = append(r.order, desc.Name)
	}
	r.providers[desc.Name] = &providerState{desc: desc}
	metrics.ProviderHealthy.WithLabelValues(desc.Name).Set(1)
}

// ListAvailable returns snapshot copies of every provider supporting
// the channel, healthy ones first, then by ascending priority. The
// unhealthy tail is kept in the list so that when every provider is
// down the caller still makes a real attempt.
func (r *Registry) ListAvailable(ch domain.Channel) []domain.ServiceDescriptor {
	states := r.states()

	var out []domain.ServiceDescriptor
	for _, st := range states {
		st.mu.Lock()
		desc := snapshotOf(st.desc)
		st.mu.Unlock()
		if desc.Supports(ch) {
			out = append(out, desc)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Healthy != out[j].Healthy {
			return out[i].Healthy
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// ReportOutcome records the result of one provider call. A success
// restores health immediately and zeroes the failure counter; failures
// only flip a provider unhealthy once they hit the threshold, so one
// transient error does not condemn a working provider.
func (r *Registry) ReportOutcome(name string, success bool) {
	r.mu.RLock()
	st, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if success {
		st.desc.ConsecutiveFailures = 0
		if !st.desc.Healthy {
			st.desc.Healthy = true
			st.desc.LastHealthChange = r.now().UTC()
			metrics.ProviderHealthy.WithLabelValues(name).Set(1)
			slog.Info("provider recovered", "provider", name)
		}
		return
	}

	st.desc.ConsecutiveFailures++
	if st.desc.Healthy && st.desc.ConsecutiveFailures >= r.threshold {
		st.desc.Healthy = false
		st.desc.LastHealthChange = r.now().UTC()
		metrics.ProviderHealthy.WithLabelValues(name).Set(0)
		slog.Warn("provider marked unhealthy",
			"provider", name,
			"consecutive_failures", st.desc.ConsecutiveFailures,
		)
	}
}

// Snapshot returns the current health of every registered provider,
// in registration order, as read-only copies.
func (r *Registry) Snapshot() domain.HealthSnapshot {
	states := r.states()

	snap := domain.HealthSnapshot{TotalProviders: len(states)}
	for _, st := range states {
		st.mu.Lock()
		desc := snapshotOf(st.desc)
		st.mu.Unlock()
		if desc.Healthy {
			snap.HealthyProviders++
		}
		snap.Providers = append(snap.Providers, desc)
	}
	return snap
}

func (r *Registry) states() []*providerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*providerState, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

func snapshotOf(d domain.ServiceDescriptor) domain.ServiceDescriptor {
	cp := d
	cp.Channels = append([]domain.Channel(nil), d.Channels...)
	return cp
}

package domain

import "time"

// ServiceDescriptor is a registered delivery provider as seen through
// the registry. Values handed out by the registry are snapshot copies;
// the registry is the only writer of health state.
type ServiceDescriptor struct {
	Name                string
	DisplayName         string
	Channels            []Channel
	Priority            int // lower = preferred
	Healthy             bool
	ConsecutiveFailures int
	LastHealthChange    time.Time
}

func (d ServiceDescriptor) Supports(ch Channel) bool {
	for _, c := range d.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

type HealthSnapshot struct {
	TotalProviders   int
	HealthyProviders int
	Providers        []ServiceDescriptor
}

// FullyHealthy is true when every configured provider is healthy.
func (s HealthSnapshot) FullyHealthy() bool {
	return s.TotalProviders > 0 && s.HealthyProviders == s.TotalProviders
}

// Outage is true when no configured provider is healthy.
func (s HealthSnapshot) Outage() bool {
	return s.TotalProviders > 0 && s.HealthyProviders == 0
}

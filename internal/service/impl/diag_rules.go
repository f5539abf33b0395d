package impl

import (
	"strings"

	"otp/internal/domain"
	"otp/internal/dto"
)

// Thresholds shared by recommendations, escalation paths and report
// priorities. Everything derived from them is deterministic: same
// inputs, same output.
const (
	lowSuccessRate     = 0.5
	veryLowSuccessRate = 0.25
	minAttemptsToJudge = 3
)

// diagInput is the full input to the rule engine: registry health,
// the user's delivery history, and the channel of interest (may be
// empty).
type diagInput struct {
	health  domain.HealthSnapshot
	history *dto.DeliveryHistory
	channel domain.Channel
}

func (in diagInput) lowUserSuccess() bool {
	return in.history != nil && in.history.Total >= minAttemptsToJudge && in.history.SuccessRate < lowSuccessRate
}

func (in diagInput) veryLowUserSuccess() bool {
	return in.history != nil && in.history.Total >= minAttemptsToJudge && in.history.SuccessRate < veryLowSuccessRate
}

type recommendationRule struct {
	name  string
	match func(in diagInput) bool
	build func(in diagInput) dto.Recommendation
}

// Ordered: the most severe conditions first so the list reads
// top-down.
var recommendationRules = []recommendationRule{
	{
		name:  "system-outage",
		match: func(in diagInput) bool { return in.health.Outage() },
		build: func(in diagInput) dto.Recommendation {
			return dto.Recommendation{
				Severity: "critical",
				Title:    "Verification delivery outage",
				Detail:   "No delivery provider is currently healthy. Codes cannot be sent on any channel right now.",
				Tips: []string{
					"Wait a few minutes and request a new code",
					"Contact support if the problem persists",
				},
			}
		},
	},
	{
		name: "partial-outage",
		match: func(in diagInput) bool {
			return in.health.TotalProviders > 0 &&
				in.health.HealthyProviders > 0 &&
				in.health.HealthyProviders < in.health.TotalProviders
		},
		build: func(in diagInput) dto.Recommendation {
			return dto.Recommendation{
				Severity: "warning",
				Title:    "Partial provider outage",
				Detail:   "Some delivery providers are degraded. Delivery may be slower than usual.",
				Tips: []string{
					"Try the alternate channel if your code does not arrive",
				},
			}
		},
	},
	{
		name:  "delivery-issues",
		match: func(in diagInput) bool { return in.lowUserSuccess() },
		build: func(in diagInput) dto.Recommendation {
			return dto.Recommendation{
				Severity: "warning",
				Title:    "Your recent deliveries are failing",
				Detail:   "More than half of your recent code deliveries did not go through.",
				Tips:     channelTips(in.channel),
			}
		},
	},
}

func channelTips(ch domain.Channel) []string {
	switch ch {
	case domain.ChannelSMS:
		return []string{
			"Confirm your phone has signal and can receive SMS",
			"Check whether your carrier filters messages from short codes",
			"Try receiving the code by email instead",
		}
	case domain.ChannelEmail:
		return []string{
			"Check your spam or junk folder",
			"Confirm the email address on your account is correct",
			"Try receiving the code by SMS instead",
		}
	default:
		return []string{
			"Verify the contact details on your account",
			"Try the alternate delivery channel",
		}
	}
}

func evalRecommendations(in diagInput) []dto.Recommendation {
	out := make([]dto.Recommendation, 0, len(recommendationRules))
	for _, rule := range recommendationRules {
		if rule.match(in) {
			out = append(out, rule.build(in))
		}
	}
	return out
}

type troubleshootingPattern struct {
	issue    string
	keywords []string
	steps    []string
}

var troubleshootingPatterns = []troubleshootingPattern{
	{
		issue:    "invalid-contact-format",
		keywords: []string{"invalid", "malformed", "format"},
		steps: []string{
			"Check the contact value saved on your account",
			"Phone numbers must include the country code, e.g. +14155550123",
		},
	},
	{
		issue:    "rate-limited",
		keywords: []string{"rate", "throttle", "too many"},
		steps: []string{
			"Wait before requesting another code",
			"Avoid tapping the resend button repeatedly",
		},
	},
	{
		issue:    "provider-unavailable",
		keywords: []string{"unavailable", "timed out", "timeout", "connection", "refused", "status 5"},
		steps: []string{
			"The delivery provider had a temporary problem",
			"Request a new code; the system will route around the failing provider",
		},
	},
}

const genericTroubleshootingIssue = "delivery-error"

var genericTroubleshootingSteps = []string{
	"Request a new code",
	"If it still does not arrive, try the alternate channel or contact support",
}

// matchTroubleshooting maps each distinct error string from recent
// attempts to a known remediation, falling back to generic guidance.
func matchTroubleshooting(errs []string) []dto.TroubleshootingEntry {
	out := make([]dto.TroubleshootingEntry, 0, len(errs))
	seen := make(map[string]bool, len(errs))

	for _, e := range errs {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true

		lower := strings.ToLower(e)
		matched := false
		for _, p := range troubleshootingPatterns {
			for _, kw := range p.keywords {
				if strings.Contains(lower, kw) {
					out = append(out, dto.TroubleshootingEntry{Issue: p.issue, Error: e, Steps: p.steps})
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			out = append(out, dto.TroubleshootingEntry{
				Issue: genericTroubleshootingIssue,
				Error: e,
				Steps: genericTroubleshootingSteps,
			})
		}
	}
	return out
}

// escalationPaths always offers general support and adds sharper
// routes when the same thresholds that drive recommendations fire.
func escalationPaths(in diagInput) []dto.EscalationPath {
	var out []dto.EscalationPath
	if in.health.Outage() {
		out = append(out, dto.EscalationPath{
			Name:             "system-outage",
			Priority:         "critical",
			Contact:          "status page / incident hotline",
			ExpectedResponse: "1 hour",
		})
	}
	if in.veryLowUserSuccess() {
		out = append(out, dto.EscalationPath{
			Name:             "persistent-delivery-failure",
			Priority:         "high",
			Contact:          "support ticket, delivery team queue",
			ExpectedResponse: "4 hours",
		})
	}
	out = append(out, dto.EscalationPath{
		Name:             "general-support",
		Priority:         "low",
		Contact:          "support ticket",
		ExpectedResponse: "24 hours",
	})
	return out
}

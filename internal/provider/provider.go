package provider

import (
	"context"

	"otp/internal/domain"
)

// Message is one outbound OTP (or connectivity-test) message.
type Message struct {
	Channel domain.Channel
	To      string
	Subject string // email only
	Body    string
}

// Provider is a pluggable delivery transport. The engine orchestrates
// providers; it never implements carrier protocols itself. Send must
// respect ctx cancellation; the caller applies a per-provider timeout.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Set maps registered provider names to their transports.
type Set map[string]Provider

func NewSet(providers ...Provider) Set {
	s := make(Set, len(providers))
	for _, p := range providers {
		s[p.Name()] = p
	}
	return s
}

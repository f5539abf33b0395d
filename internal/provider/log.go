package provider

import (
	"context"
	"log/slog"
)

// LogProvider writes messages to the service log instead of a carrier.
// Used in dev and test environments so the full request path runs
// without carrier credentials.
type LogProvider struct {
	name string
}

func NewLogProvider(name string) *LogProvider {
	return &LogProvider{name: name}
}

func (p *LogProvider) Name() string { return p.name }

func (p *LogProvider) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("log provider delivery",
		"provider", p.name,
		"channel", msg.Channel,
		"to", msg.To,
		"body", msg.Body,
	)
	return nil
}

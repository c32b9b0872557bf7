package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured marks a channel whose settings are incomplete. Sends
// through it cannot succeed until an operator fills them in.
var ErrNotConfigured = errors.New("notify channel is not configured")

// Provider delivers one rendered reminder to a recipient.
type Provider interface {
	Send(ctx context.Context, to, subject, body string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to, subject, body string) error {
	return nil
}

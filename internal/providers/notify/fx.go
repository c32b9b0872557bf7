package notify

import (
	"context"

	"github.com/seatwise/seatwise/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.notify",
	fx.Provide(NewSelector),
)

// Selector resolves the active channel on every send so hot-reloaded config
// changes take effect without a restart.
type Selector struct {
	holder *config.ReminderConfigHolder
}

func NewSelector(holder *config.ReminderConfigHolder) Provider {
	return &Selector{holder: holder}
}

func (s *Selector) Send(ctx context.Context, to, subject, body string) error {
	cfg := s.holder.Get()
	switch cfg.Channel {
	case "api":
		return NewAPI(cfg).Send(ctx, to, subject, body)
	default:
		return NewSMTP(cfg).Send(ctx, to, subject, body)
	}
}

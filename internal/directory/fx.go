package directory

import (
	"github.com/seatwise/seatwise/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("directory.client",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Client {
		return NewClient(cfg.Directory, log)
	}),
	fx.Provide(NewCredentials),
)

package migration

import (
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// mysql/sqlite deployments manage schema out of band
			return nil
		}
		return RunMigrations(db.PostgresDSN(cfg))
	}),
)

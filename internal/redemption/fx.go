package redemption

import (
	"github.com/seatwise/seatwise/internal/redemption/repository"
	"github.com/seatwise/seatwise/internal/redemption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("redemption.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

package redeemflow

import (
	"github.com/seatwise/seatwise/internal/redeemflow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("redeemflow.service",
	fx.Provide(service.New),
)

package lifecycle

import (
	"github.com/seatwise/seatwise/internal/lifecycle/repository"
	"github.com/seatwise/seatwise/internal/lifecycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lifecycle.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

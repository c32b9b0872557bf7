package seatpool

import (
	"github.com/seatwise/seatwise/internal/seatpool/repository"
	"github.com/seatwise/seatwise/internal/seatpool/service"
	"go.uber.org/fx"
)

var Module = fx.Module("seatpool.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

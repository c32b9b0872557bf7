package reminder

import (
	"github.com/seatwise/seatwise/internal/reminder/repository"
	"github.com/seatwise/seatwise/internal/reminder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reminder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

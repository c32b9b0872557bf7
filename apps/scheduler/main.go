package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/lifecycle"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/observability"
	"github.com/seatwise/seatwise/internal/providers/notify"
	"github.com/seatwise/seatwise/internal/reminder"
	"github.com/seatwise/seatwise/internal/scheduler"
	"github.com/seatwise/seatwise/pkg/db"
	"go.uber.org/fx"
)

// Standalone reminder scheduler for deployments that split the sweep loop
// from the HTTP API. The redis lock keeps it safe to run both.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		lifecycle.Module,
		notify.Module,
		reminder.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

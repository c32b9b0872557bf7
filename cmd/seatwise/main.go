package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/directory"
	"github.com/seatwise/seatwise/internal/lifecycle"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/migration"
	"github.com/seatwise/seatwise/internal/observability"
	"github.com/seatwise/seatwise/internal/providers/notify"
	"github.com/seatwise/seatwise/internal/redeemflow"
	"github.com/seatwise/seatwise/internal/redemption"
	"github.com/seatwise/seatwise/internal/reminder"
	"github.com/seatwise/seatwise/internal/scheduler"
	"github.com/seatwise/seatwise/internal/seatpool"
	"github.com/seatwise/seatwise/internal/server"
	"github.com/seatwise/seatwise/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services
		directory.Module,
		seatpool.Module,
		redemption.Module,
		lifecycle.Module,
		redeemflow.Module,
		notify.Module,
		reminder.Module,
		scheduler.Module,

		server.Module,
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

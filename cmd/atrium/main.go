package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/internal/events"
	"github.com/openatrium/atrium/internal/migration"
	"github.com/openatrium/atrium/internal/observability"
	"github.com/openatrium/atrium/internal/server"
	"github.com/openatrium/atrium/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(events.NewOutboxPublisher),
		db.Module,
		migration.Module,
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

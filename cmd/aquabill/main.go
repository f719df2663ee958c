package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/hydranet/aquabill/internal/clock"
	"github.com/hydranet/aquabill/internal/config"
	"github.com/hydranet/aquabill/internal/migration"
	"github.com/hydranet/aquabill/internal/observability"
	"github.com/hydranet/aquabill/internal/server"
	"github.com/hydranet/aquabill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		log.Fatalf("snowflake node: %v", err)
	}
	return node
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/smallbiznis/partnerflow/internal/evaluator"
	"github.com/smallbiznis/partnerflow/internal/migration"
	"github.com/smallbiznis/partnerflow/internal/observability"
	"github.com/smallbiznis/partnerflow/internal/server"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP API plus every domain service
		server.Module,
		migration.Module,

		// Background group evaluation
		evaluator.Loop,
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

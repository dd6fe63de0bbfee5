package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/smallbiznis/partnerflow/internal/migration"
	"github.com/smallbiznis/partnerflow/internal/observability"
	"github.com/smallbiznis/partnerflow/internal/server"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"go.uber.org/fx"
)

// The API binary evaluates partners on demand only. Run apps/evaluator
// alongside it for the background loop.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerflow/internal/audit"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/smallbiznis/partnerflow/internal/evaluator"
	"github.com/smallbiznis/partnerflow/internal/migration"
	"github.com/smallbiznis/partnerflow/internal/observability"
	"github.com/smallbiznis/partnerflow/internal/partner"
	"github.com/smallbiznis/partnerflow/internal/partnergroup"
	"github.com/smallbiznis/partnerflow/internal/program"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the evaluator
		audit.Module,
		program.Module,
		partnergroup.Module,
		partner.Module,
		ratelimit.Module,
		migration.Module,

		// No server module!
		evaluator.Module,
		evaluator.Loop,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}

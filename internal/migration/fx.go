package migration

import (
	"context"

	"github.com/smallbiznis/partnerflow/internal/config"
	programdomain "github.com/smallbiznis/partnerflow/internal/program/domain"
	"github.com/smallbiznis/partnerflow/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, programs programdomain.Service, log *zap.Logger) error {
		if err := Run(conn); err != nil {
			return err
		}
		return seed.EnsureDefaultProgram(context.Background(), programs, cfg.Bootstrap.DefaultProgramName, log)
	}),
)

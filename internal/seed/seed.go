package seed

import (
	"context"
	"strings"

	programdomain "github.com/smallbiznis/partnerflow/internal/program/domain"
	"go.uber.org/zap"
)

// EnsureDefaultProgram creates the bootstrap program and its default group
// on first start. An empty name disables seeding.
func EnsureDefaultProgram(ctx context.Context, programs programdomain.Service, name string, log *zap.Logger) error {
	name = strings.TrimSpace(name)
	if name == "" || programs == nil {
		return nil
	}

	program, err := programs.EnsureDefault(ctx, name)
	if err != nil {
		return err
	}
	if log != nil {
		log.Info("default program ready",
			zap.String("program_id", program.ID),
			zap.String("slug", program.Slug),
			zap.String("default_group_id", program.DefaultGroupID),
		)
	}
	return nil
}

package partnergroup

import (
	"github.com/smallbiznis/partnerflow/internal/partnergroup/repository"
	"github.com/smallbiznis/partnerflow/internal/partnergroup/service"
	"go.uber.org/fx"
)

var Module = fx.Module("partnergroup.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

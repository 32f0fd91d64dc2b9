package invitecode

import (
	"github.com/openatrium/atrium/internal/invitecode/repository"
	"github.com/openatrium/atrium/internal/invitecode/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invitecode.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

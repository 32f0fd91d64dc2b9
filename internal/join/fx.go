package join

import (
	"github.com/openatrium/atrium/internal/join/repository"
	"github.com/openatrium/atrium/internal/join/service"
	"go.uber.org/fx"
)

var Module = fx.Module("join.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

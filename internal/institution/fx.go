package institution

import (
	"github.com/openatrium/atrium/internal/institution/repository"
	"github.com/openatrium/atrium/internal/institution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("institution.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

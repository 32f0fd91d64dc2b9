package community

import (
	"github.com/openatrium/atrium/internal/community/repository"
	"github.com/openatrium/atrium/internal/community/service"
	"go.uber.org/fx"
)

var Module = fx.Module("community.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

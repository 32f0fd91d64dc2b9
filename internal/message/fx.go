package message

import (
	"github.com/openatrium/atrium/internal/message/repository"
	"github.com/openatrium/atrium/internal/message/service"
	"go.uber.org/fx"
)

var Module = fx.Module("message.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

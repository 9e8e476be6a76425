package pledge

import (
	"github.com/groupcart/groupcart/internal/pledge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pledge.service",
	fx.Provide(service.NewService),
)

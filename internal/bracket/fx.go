package bracket

import (
	"github.com/groupcart/groupcart/internal/bracket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bracket.service",
	fx.Provide(service.NewService),
)

package membership

import (
	"github.com/stellarwp/restrict-content-sub000/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership",
	fx.Provide(service.NewService),
)

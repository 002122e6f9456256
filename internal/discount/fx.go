package discount

import (
	"github.com/stellarwp/restrict-content-sub000/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(service.NewService),
)

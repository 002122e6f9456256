package payment

import (
	"github.com/stellarwp/restrict-content-sub000/internal/payment/repository"
	"github.com/stellarwp/restrict-content-sub000/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

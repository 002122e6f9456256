package customer

import (
	"github.com/stellarwp/restrict-content-sub000/internal/customer/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("customer",
	fx.Provide(repository.Provide),
)

package audit

import (
	"github.com/stellarwp/restrict-content-sub000/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(service.NewService),
)

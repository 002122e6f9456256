package level

import (
	"github.com/stellarwp/restrict-content-sub000/internal/level/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("level",
	fx.Provide(repository.Provide),
)

// @title           Restrict Content API
// @version         1.0
// @description     Membership registration, billing and access API

// @host      localhost:8080
// @BasePath  /api
// @Schemes 	http https

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/stellarwp/restrict-content-sub000/internal/audit"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	"github.com/stellarwp/restrict-content-sub000/internal/customer"
	"github.com/stellarwp/restrict-content-sub000/internal/discount"
	"github.com/stellarwp/restrict-content-sub000/internal/gateway"
	"github.com/stellarwp/restrict-content-sub000/internal/level"
	"github.com/stellarwp/restrict-content-sub000/internal/membership"
	"github.com/stellarwp/restrict-content-sub000/internal/migration"
	"github.com/stellarwp/restrict-content-sub000/internal/notification"
	"github.com/stellarwp/restrict-content-sub000/internal/observability"
	"github.com/stellarwp/restrict-content-sub000/internal/payment"
	"github.com/stellarwp/restrict-content-sub000/internal/registration"
	"github.com/stellarwp/restrict-content-sub000/internal/scheduler"
	"github.com/stellarwp/restrict-content-sub000/internal/seed"
	"github.com/stellarwp/restrict-content-sub000/internal/server"
	"github.com/stellarwp/restrict-content-sub000/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if err := seed.EnsureDefaultLevels(conn); err != nil {
				return err
			}
			return seed.EnsureWelcomeDiscount(conn)
		}),

		// Billing core
		gateway.Module,
		notification.Module,
		audit.Module,
		level.Module,
		customer.Module,
		discount.Module,
		registration.Module,
		membership.Module,
		payment.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

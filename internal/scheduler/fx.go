package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewSweeper),
	fx.Invoke(registerCron),
)

type cronParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Config    config.Config
	Sweeper   *Sweeper
}

func registerCron(p cronParams) error {
	log := p.Log.Named("scheduler.cron")
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(p.Config.Sweep.Schedule, func() {
		if err := p.Sweeper.Run(context.Background()); err != nil {
			log.Error("sweep run", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Info("sweep scheduled", zap.String("schedule", p.Config.Sweep.Schedule))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := c.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

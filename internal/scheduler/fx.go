package scheduler

import (
	"context"
	"time"

	"github.com/groupcart/groupcart/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(
		ProvideConfig,
		NewRedisClient,
		NewLocker,
		New,
	),
	fx.Invoke(Start),
)

// ProvideConfig maps application config onto the sweep loop.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
	}.withDefaults()
}

// Start runs the sweep loop for the lifetime of the application.
func Start(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}

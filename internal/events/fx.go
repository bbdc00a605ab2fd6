package events

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(newBus),
)

func newBus(lc fx.Lifecycle, log *zap.Logger) (Bus, Publisher) {
	bus := NewGoChannelBus(log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return bus.Close()
		},
	})
	return bus, bus
}

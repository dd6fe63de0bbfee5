package evaluator

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module expects config.Module to provide the evaluator config holder.
var Module = fx.Module("evaluator",
	fx.Provide(New),
)

// Loop starts the background evaluator. Binaries that serve HTTP only
// include Module without Loop so on-demand evaluation still works.
var Loop = fx.Invoke(Start)

func Start(lc fx.Lifecycle, e *Evaluator, log *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})

			go func() {
				defer close(done)
				e.RunForever(ctx)
			}()
			log.Info("evaluator loop started")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if cancel == nil {
				return nil
			}
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

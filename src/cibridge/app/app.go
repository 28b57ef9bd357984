package app

import (
	"context"
	"time"

	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/gateway"
	"github.com/uber/cibridge/src/cibridge/handler"
	"github.com/uber/cibridge/src/cibridge/internal/clock"
	"github.com/uber/cibridge/src/cibridge/internal/core"
	"github.com/uber/cibridge/src/cibridge/internal/executor"
	"github.com/uber/cibridge/src/cibridge/internal/fs"
	"github.com/uber/cibridge/src/cibridge/internal/jsonrpcfx"
	"github.com/uber/cibridge/src/cibridge/internal/logfilewriter"
	"github.com/uber/cibridge/src/cibridge/internal/process"
	"github.com/uber/cibridge/src/cibridge/internal/serverinfofile"
	"github.com/uber/cibridge/src/cibridge/internal/watcher"
	"go.uber.org/fx"
)

// Module defines the cibridge application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	jsonrpcfx.Module,
	fs.Module,
	clock.Module,
	executor.Module,
	process.Module,
	serverinfofile.Module,
	logfilewriter.Module,
	watcher.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(newRootScope),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)

func newRootScope(lc fx.Lifecycle, env Context) tally.Scope {
	rs, closer := tally.NewRootScope(tally.ScopeOptions{
		Tags: map[string]string{
			"service":     "cibridge",
			"environment": env.Environment,
		},
	}, 1*time.Second)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})

	return rs
}

package controller

import (
	"context"

	"github.com/uber/cibridge/src/cibridge/controller/bridge"
	"github.com/uber/cibridge/src/cibridge/controller/codeintel"
	healthmonitor "github.com/uber/cibridge/src/cibridge/controller/health-monitor"
	"github.com/uber/cibridge/src/cibridge/controller/supervisor"
	"github.com/uber/cibridge/src/cibridge/internal/watcher"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the daemon supervisor and everything built on it.
var Module = fx.Options(
	fx.Provide(healthmonitor.New),
	fx.Provide(supervisor.New),
	bridge.Module,
	codeintel.Module,
	fx.Invoke(recycleOnChange),
)

// recycleOnChange discards the running daemon whenever a watched server file changes, so the next request starts the new code.
func recycleOnChange(w watcher.Watcher, s supervisor.Controller, logger *zap.SugaredLogger) {
	w.Subscribe(func(ctx context.Context, path string) {
		logger.Infof("%s changed, discarding daemon", path)
		if err := s.Discard(ctx); err != nil {
			logger.Warnf("discarding daemon after change to %s: %v", path, err)
		}
	})
}

package handler

import (
	controller "github.com/uber/cibridge/src/cibridge/controller"
	handler "github.com/uber/cibridge/src/cibridge/handler/codeintel"
	"github.com/uber/cibridge/src/cibridge/internal/jsonrpcfx"
	"github.com/uber/cibridge/src/cibridge/repository/document"
	"github.com/uber/cibridge/src/cibridge/repository/session"
	"go.uber.org/fx"
)

// Module provides the LSP inbound into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(session.New),
	fx.Provide(document.New),
	fx.Provide(handler.New),
	fx.Invoke(func(m jsonrpcfx.ConnectionManager) {}),
)

package codeintel

import (
	"context"

	"github.com/uber/cibridge/src/cibridge/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/multierr"
)

// Initialize registers the IDE connection and answers with the server capabilities.
func (r *jsonRPCRouter) Initialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToInitializeParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	result, err := r.codeintel.Initialize(ctx, params)
	return reply(ctx, result, err)
}

func (r *jsonRPCRouter) Initialized(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToInitializedParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	return reply(ctx, nil, r.codeintel.Initialized(ctx, params))
}

func (r *jsonRPCRouter) Shutdown(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	return reply(ctx, nil, r.codeintel.Shutdown(ctx))
}

// Exit is a notification. The session is dropped after the reply so the connection is not closed underneath it.
func (r *jsonRPCRouter) Exit(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	err := reply(ctx, nil, nil)
	return multierr.Append(err, r.codeintel.Exit(ctx))
}

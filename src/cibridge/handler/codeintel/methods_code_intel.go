package codeintel

import (
	"context"

	"github.com/uber/cibridge/src/cibridge/mapper"
	"go.lsp.dev/jsonrpc2"
)

func (r *jsonRPCRouter) Completion(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToCompletionParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	result, err := r.codeintel.Completion(ctx, params)
	return reply(ctx, result, err)
}

func (r *jsonRPCRouter) GotoDefinition(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToDefinitionParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	result, err := r.codeintel.GotoDefinition(ctx, params)
	return reply(ctx, result, err)
}

// Status takes no parameters.
func (r *jsonRPCRouter) Status(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	result, err := r.codeintel.Status(ctx)
	return reply(ctx, result, err)
}

package codeintel

import (
	"context"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	controller "github.com/uber/cibridge/src/cibridge/controller/codeintel"
	"github.com/uber/cibridge/src/cibridge/entity"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// MethodStatus returns the state of the supervised daemon.
const MethodStatus = "cibridge/status"

type jsonRPCRouter struct {
	codeintel controller.Controller
	uuid      uuid.UUID
	stats     tally.Scope
}

// HandleReq handles routing for a single request.
func (r *jsonRPCRouter) HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	ctx = context.WithValue(ctx, entity.SessionContextKey, r.uuid)
	reply = notFoundAsInvalidParams(reply)
	if r.stats != nil {
		r.stats.Tagged(map[string]string{"method": req.Method()}).Counter("requests").Inc(1)
	}

	switch req.Method() {
	// Lifecycle related methods.
	case protocol.MethodInitialize:
		return r.Initialize(ctx, reply, req)

	case protocol.MethodInitialized:
		return r.Initialized(ctx, reply, req)

	case protocol.MethodShutdown:
		return r.Shutdown(ctx, reply, req)

	case protocol.MethodExit:
		return r.Exit(ctx, reply, req)

	// Document related methods.
	case protocol.MethodTextDocumentDidOpen:
		return r.DidOpen(ctx, reply, req)

	case protocol.MethodTextDocumentDidChange:
		return r.DidChange(ctx, reply, req)

	case protocol.MethodTextDocumentDidClose:
		return r.DidClose(ctx, reply, req)

	// Code intel related methods.
	case protocol.MethodTextDocumentCompletion:
		return r.Completion(ctx, reply, req)

	case protocol.MethodTextDocumentDefinition:
		return r.GotoDefinition(ctx, reply, req)

	// Custom methods.
	case MethodStatus:
		return r.Status(ctx, reply, req)

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

// notFoundAsInvalidParams reports requests on unknown sessions or documents as invalid params rather than internal errors.
func notFoundAsInvalidParams(reply jsonrpc2.Replier) jsonrpc2.Replier {
	return func(ctx context.Context, result interface{}, err error) error {
		if cibridgeerrors.IsNotFound(err) {
			err = jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
		}
		return reply(ctx, result, err)
	}
}

func (r *jsonRPCRouter) UUID() uuid.UUID {
	return r.uuid
}

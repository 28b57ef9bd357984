package codeintel

import (
	"context"

	"github.com/uber/cibridge/src/cibridge/entity"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"github.com/uber/cibridge/src/cibridge/mapper"
	"go.lsp.dev/protocol"
)

// Completion asks the daemon for completion candidates at the cursor.
// While the daemon is still starting the list is empty and marked incomplete so the client asks again.
func (c *controller) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	item, err := c.documents.Get(ctx, params.TextDocument)
	if err != nil {
		return nil, err
	}
	if !c.handles(item.LanguageID) {
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}

	result, err := c.invoke(ctx, mapper.CompletionParamsToPendingRequest(params, item.Text))
	if err != nil {
		if cibridgeerrors.IsTransient(err) {
			return &protocol.CompletionList{IsIncomplete: true, Items: []protocol.CompletionItem{}}, nil
		}
		return nil, err
	}
	return mapper.PayloadToCompletionList(result.Payload)
}

// GotoDefinition asks the daemon for the definition sites of the symbol at the cursor.
func (c *controller) GotoDefinition(ctx context.Context, params *protocol.DefinitionParams) ([]protocol.Location, error) {
	item, err := c.documents.Get(ctx, params.TextDocument)
	if err != nil {
		return nil, err
	}
	if !c.handles(item.LanguageID) {
		return []protocol.Location{}, nil
	}

	result, err := c.invoke(ctx, mapper.DefinitionParamsToPendingRequest(params, item.Text))
	if err != nil {
		if cibridgeerrors.IsTransient(err) {
			return []protocol.Location{}, nil
		}
		return nil, err
	}
	return mapper.PayloadToLocations(result.Payload)
}

// Status reports the state of the supervised daemon.
func (c *controller) Status(ctx context.Context) (*entity.DaemonStatus, error) {
	status, err := c.supervisor.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *controller) invoke(ctx context.Context, req entity.PendingRequest) (*entity.Result, error) {
	scope := c.stats.Tagged(map[string]string{"command": string(req.Command)})
	scope.Counter("requests").Inc(1)

	result, err := c.bridge.Invoke(ctx, req)
	if err != nil {
		if cibridgeerrors.IsTransient(err) {
			scope.Counter("transient").Inc(1)
			c.logger.Debugw("daemon not ready", "command", req.Command, "error", err)
		} else {
			scope.Counter("errors").Inc(1)
			c.logger.Warnw("daemon request failed", "command", req.Command, "path", req.Path, "error", err)
		}
		return nil, err
	}
	return result, nil
}

package codeintel

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// Initialize stores the client parameters and advertises full document sync, completion and definition support.
func (c *controller) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if err := c.sessions.Update(ctx, func(s *entity.Session) {
		s.InitializeParams = params
	}); err != nil {
		return nil, fmt.Errorf("storing initialize params: %w", err)
	}

	return &protocol.InitializeResult{
		ServerInfo: &protocol.ServerInfo{
			Name: _serverName,
		},
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: c.triggerCharacters,
			},
			DefinitionProvider: true,
		},
	}, nil
}

// Initialized is sent after the client received the result of the initialize request.
func (c *controller) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}
	c.logger.Infow("client initialized", "session", s.UUID.String())
	return nil
}

// Shutdown is sent just before Exit. The daemon outlives individual sessions.
func (c *controller) Shutdown(ctx context.Context) error {
	return nil
}

// Exit cleans up the session that sent it.
func (c *controller) Exit(ctx context.Context) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("error during session exit: %w", err)
	}
	return c.EndSession(ctx, s.UUID)
}

// InitSession creates a new empty session and returns its UUID.
func (c *controller) InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	if err := c.ideGateway.RegisterClient(ctx, id, conn); err != nil {
		return uuid.Nil, err
	}

	if err := c.sessions.Set(ctx, mapper.UUIDToSession(id, conn)); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// EndSession includes any cleanup at the end of the session, during or after the last JSON-RPC request.
func (c *controller) EndSession(ctx context.Context, id uuid.UUID) error {
	if err := c.ideGateway.DeregisterClient(ctx, id); err != nil {
		c.logger.Error(err)
	}
	return c.sessions.Delete(ctx, id)
}

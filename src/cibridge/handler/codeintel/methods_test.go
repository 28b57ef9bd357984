package codeintel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/cibridge/src/cibridge/controller/codeintel/codeintelmock"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/factory"
	"github.com/uber/cibridge/src/cibridge/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/mock/gomock"
)

func TestMethods(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		setReturn func(c *codeintelmock.MockController, err error)
		params    interface{}
	}{
		{
			name:   "Initialize",
			method: protocol.MethodInitialize,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().Initialize(gomock.Any(), gomock.Any()).Return(&protocol.InitializeResult{}, err)
			},
			params: protocol.InitializeParams{},
		},
		{
			name:   "Initialized",
			method: protocol.MethodInitialized,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().Initialized(gomock.Any(), gomock.Any()).Return(err)
			},
			params: protocol.InitializedParams{},
		},
		{
			name:   "Shutdown",
			method: protocol.MethodShutdown,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().Shutdown(gomock.Any()).Return(err)
			},
		},
		{
			name:   "DidOpen",
			method: protocol.MethodTextDocumentDidOpen,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().DidOpen(gomock.Any(), gomock.Any()).Return(err)
			},
			params: protocol.DidOpenTextDocumentParams{},
		},
		{
			name:   "DidChange",
			method: protocol.MethodTextDocumentDidChange,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().DidChange(gomock.Any(), gomock.Any()).Return(err)
			},
			params: protocol.DidChangeTextDocumentParams{},
		},
		{
			name:   "DidClose",
			method: protocol.MethodTextDocumentDidClose,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().DidClose(gomock.Any(), gomock.Any()).Return(err)
			},
			params: protocol.DidCloseTextDocumentParams{},
		},
		{
			name:   "Completion",
			method: protocol.MethodTextDocumentCompletion,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().Completion(gomock.Any(), gomock.Any()).Return(&protocol.CompletionList{}, err)
			},
			params: protocol.CompletionParams{},
		},
		{
			name:   "GotoDefinition",
			method: protocol.MethodTextDocumentDefinition,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().GotoDefinition(gomock.Any(), gomock.Any()).Return([]protocol.Location{}, err)
			},
			params: protocol.DefinitionParams{},
		},
		{
			name:   "Status",
			method: MethodStatus,
			setReturn: func(c *codeintelmock.MockController, err error) {
				c.EXPECT().Status(gomock.Any()).Return(&entity.DaemonStatus{State: entity.DaemonListening}, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ctx := context.Background()
			replier := newMockReplier()

			c := codeintelmock.NewMockController(ctrl)
			r := jsonRPCRouter{codeintel: c, uuid: factory.UUID()}

			// Valid params.
			tt.setReturn(c, nil)
			req, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), tt.method, tt.params)
			assert.NoError(t, r.HandleReq(ctx, replier, req))

			// Invalid params.
			if tt.params != nil {
				req, _ = jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), tt.method, 5)
				assert.Error(t, r.HandleReq(ctx, replier, req))
			}

			// Controller error.
			tt.setReturn(c, errors.New("err"))
			req, _ = jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), tt.method, tt.params)
			assert.Error(t, r.HandleReq(ctx, replier, req))
		})
	}
}

func TestExitRepliesFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := codeintelmock.NewMockController(ctrl)
	id := factory.UUID()
	r := jsonRPCRouter{codeintel: c, uuid: id}

	replied := false
	replier := func(ctx context.Context, result interface{}, err error) error {
		replied = true
		return nil
	}
	c.EXPECT().Exit(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		assert.True(t, replied)
		got, err := mapper.ContextToSessionUUID(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, got)
		return nil
	})

	req, _ := jsonrpc2.NewNotification(protocol.MethodExit, nil)
	assert.NoError(t, r.HandleReq(context.Background(), replier, req))
}

func TestStatusResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := codeintelmock.NewMockController(ctrl)
	r := jsonRPCRouter{codeintel: c}

	status := &entity.DaemonStatus{State: entity.DaemonStarting, Generation: 3, Port: 10881}
	c.EXPECT().Status(gomock.Any()).Return(status, nil)

	var got interface{}
	replier := func(ctx context.Context, result interface{}, err error) error {
		got = result
		return err
	}
	req, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(1), MethodStatus, nil)
	require.NoError(t, r.HandleReq(context.Background(), replier, req))
	assert.Equal(t, status, got)
}

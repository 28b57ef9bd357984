package codeintel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/controller/codeintel/codeintelmock"
	"github.com/uber/cibridge/src/cibridge/factory"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/mock/gomock"
)

func TestHandleReq(t *testing.T) {
	ctx := context.Background()
	scope := tally.NewTestScope("", nil)
	m := jsonRPCRouter{stats: scope}

	request, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), "sampleMethod", []string{"val1", "val2"})
	err := m.HandleReq(ctx, newMockReplier(), request)
	assert.Error(t, err)
	assert.Equal(t, int64(1), scope.Snapshot().Counters()["requests+method=sampleMethod"].Value())
}

func TestNotFoundAsInvalidParams(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := codeintelmock.NewMockController(ctrl)
	r := jsonRPCRouter{codeintel: c, uuid: factory.UUID()}

	c.EXPECT().Completion(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("completion: %w", &cibridgeerrors.DocumentNotFoundError{URI: "file:///a.php"}))
	var replied error
	replier := func(ctx context.Context, result interface{}, err error) error {
		replied = err
		return nil
	}

	require.NoError(t, r.HandleReq(context.Background(), replier, factory.JSONRPCRequest(protocol.MethodTextDocumentCompletion, protocol.CompletionParams{})))
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, replied, &rpcErr)
	assert.Equal(t, jsonrpc2.InvalidParams, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "document file:///a.php is not open")

	// Other errors are passed through unchanged.
	c.EXPECT().Status(gomock.Any()).Return(nil, errors.New("stopped"))
	require.NoError(t, r.HandleReq(context.Background(), replier, factory.JSONRPCRequest(MethodStatus, nil)))
	assert.EqualError(t, replied, "stopped")
}

func TestUUID(t *testing.T) {
	sampleUUID := factory.UUID()
	m := jsonRPCRouter{uuid: sampleUUID}
	assert.Equal(t, sampleUUID, m.UUID())
}

package jsonrpcfx

import (
	"context"
	"fmt"
	"net"

	"go.lsp.dev/jsonrpc2"
)

// Call dials a running server, performs a single request and closes the connection.
func Call(ctx context.Context, address string, method string, params, result interface{}) error {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connecting to %q: %w", address, err)
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(netConn))
	conn.Go(ctx, jsonrpc2.MethodNotFoundHandler)
	defer func() {
		conn.Close()
		<-conn.Done()
	}()

	if _, err := conn.Call(ctx, method, params, result); err != nil {
		return fmt.Errorf("calling %q: %w", method, err)
	}
	return nil
}

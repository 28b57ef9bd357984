package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber/cibridge/src/cibridge/factory"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const _errSendToClient = "sending call/notification to IDE %q: %w"

// Gateway is used to send outbound notifications and calls to the connected IDEs.
// Daemon events are not tied to a session, so every call is broadcast to all registered clients.
type Gateway interface {
	// RegisterClient registers a new client with the gateway. Should be called each time a new IDE connection is initialized.
	RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error
	// DeregisterClient removes a client from the gateway. Should be called each time an IDE connection is closed.
	DeregisterClient(ctx context.Context, id uuid.UUID) error

	// ShowMessage sends a window/showMessage notification.
	ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error
	// LogMessage sends a window/logMessage notification.
	LogMessage(ctx context.Context, params *protocol.LogMessageParams) error

	// BeginProgress creates a work done progress on every client and reports its beginning.
	BeginProgress(ctx context.Context, title string, message string) (protocol.ProgressToken, error)
	// EndProgress ends a progress started by BeginProgress.
	EndProgress(ctx context.Context, token protocol.ProgressToken, message string) error

	// GetLogMessageWriter returns an io.Writer that forwards each write as a LogMessage.
	GetLogMessageWriter(ctx context.Context, prefix string) io.Writer
}

type gateway struct {
	clients   map[uuid.UUID]protocol.Client
	clientsMu sync.Mutex
	logger    *zap.Logger
}

// New returns a Gateway for sending IDE notifications and calls.
func New(logger *zap.Logger) Gateway {
	return &gateway{
		clients: make(map[uuid.UUID]protocol.Client),
		logger:  logger,
	}
}

func (g *gateway) RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error {
	if conn == nil || *conn == nil {
		return fmt.Errorf("registering client %q: missing connection", id)
	}

	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	g.clients[id] = protocol.ClientDispatcher(*conn, g.logger)
	return nil
}

func (g *gateway) DeregisterClient(ctx context.Context, id uuid.UUID) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	delete(g.clients, id)
	return nil
}

func (g *gateway) ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error {
	return g.broadcast(func(c protocol.Client) error {
		return c.ShowMessage(ctx, params)
	})
}

func (g *gateway) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	return g.broadcast(func(c protocol.Client) error {
		return c.LogMessage(ctx, params)
	})
}

func (g *gateway) BeginProgress(ctx context.Context, title string, message string) (protocol.ProgressToken, error) {
	token := *protocol.NewProgressToken(factory.UUID().String())
	err := g.broadcast(func(c protocol.Client) error {
		if err := c.WorkDoneProgressCreate(ctx, &protocol.WorkDoneProgressCreateParams{Token: token}); err != nil {
			return fmt.Errorf("creating progress: %w", err)
		}
		return c.Progress(ctx, &protocol.ProgressParams{
			Token: token,
			Value: &protocol.WorkDoneProgressBegin{
				Kind:    protocol.WorkDoneProgressKindBegin,
				Title:   title,
				Message: message,
			},
		})
	})
	return token, err
}

func (g *gateway) EndProgress(ctx context.Context, token protocol.ProgressToken, message string) error {
	return g.broadcast(func(c protocol.Client) error {
		return c.Progress(ctx, &protocol.ProgressParams{
			Token: token,
			Value: &protocol.WorkDoneProgressEnd{
				Kind:    protocol.WorkDoneProgressKindEnd,
				Message: message,
			},
		})
	})
}

// broadcast calls send for every registered client outside of the lock, since calls may wait on the IDE.
func (g *gateway) broadcast(send func(c protocol.Client) error) error {
	g.clientsMu.Lock()
	ids := make([]uuid.UUID, 0, len(g.clients))
	clients := make([]protocol.Client, 0, len(g.clients))
	for id, c := range g.clients {
		ids = append(ids, id)
		clients = append(clients, c)
	}
	g.clientsMu.Unlock()

	var errs error
	for i, c := range clients {
		if err := send(c); err != nil {
			errs = multierr.Append(errs, fmt.Errorf(_errSendToClient, ids[i], err))
		}
	}
	return errs
}

// logMessageWriter implements io.Writer to allow logging to the IDE clients in situations that require an io.Writer.
type logMessageWriter struct {
	gateway *gateway
	ctx     context.Context
	prefix  string
}

func (g *gateway) GetLogMessageWriter(ctx context.Context, prefix string) io.Writer {
	return &logMessageWriter{
		gateway: g,
		ctx:     ctx,
		prefix:  prefix,
	}
}

func (w *logMessageWriter) Write(p []byte) (n int, err error) {
	str := strings.TrimSuffix(string(p), "\n")
	if err := w.gateway.LogMessage(w.ctx, &protocol.LogMessageParams{
		Message: fmt.Sprintf("[%s] %s", w.prefix, str),
		Type:    protocol.MessageTypeLog,
	}); err != nil {
		return 0, fmt.Errorf("writing to IDE log message writer: %w", err)
	}
	return len(p), nil
}

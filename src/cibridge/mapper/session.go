package mapper

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.lsp.dev/jsonrpc2"
)

// UUIDToSession creates a new session for the given connection.
func UUIDToSession(id uuid.UUID, conn *jsonrpc2.Conn) *entity.Session {
	return &entity.Session{
		UUID: id,
		Conn: conn,
	}
}

// ContextToSessionUUID returns the session UUID stored in the context.
func ContextToSessionUUID(c context.Context) (uuid.UUID, error) {
	s, ok := c.Value(entity.SessionContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, &errors.NoSessionFoundError{}
	}
	return s, nil
}

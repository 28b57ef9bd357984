package errors

import (
	stderr "errors"
	"fmt"

	"github.com/gofrs/uuid"
	"go.lsp.dev/protocol"
)

// SessionNotFoundError is returned for a connection id without a stored session.
type SessionNotFoundError struct {
	UUID uuid.UUID
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.UUID)
}

// NoSessionFoundError indicates that a request context carries no session id.
type NoSessionFoundError struct{}

func (e *NoSessionFoundError) Error() string {
	return "no session found in context"
}

// DocumentNotFoundError is returned for requests on a document the IDE never opened.
type DocumentNotFoundError struct {
	URI protocol.DocumentURI
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document %s is not open", e.URI)
}

// IsNotFound reports whether err refers to an unknown session or document.
func IsNotFound(err error) bool {
	var (
		session  *SessionNotFoundError
		noSess   *NoSessionFoundError
		document *DocumentNotFoundError
	)
	return stderr.As(err, &session) || stderr.As(err, &noSess) || stderr.As(err, &document)
}

// Package document stores the text of documents opened by the IDE.
package document

import (
	"context"
	"sync"

	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.lsp.dev/protocol"
)

// Repository keeps the latest text of each open document.
type Repository interface {
	Get(ctx context.Context, doc protocol.TextDocumentIdentifier) (protocol.TextDocumentItem, error)
	Set(ctx context.Context, item protocol.TextDocumentItem) error
	Delete(ctx context.Context, doc protocol.TextDocumentIdentifier) error
}

type repository struct {
	mu       sync.RWMutex
	memstore map[protocol.DocumentURI]protocol.TextDocumentItem
	stats    tally.Scope
}

// New returns an in-memory document repository.
func New(stats tally.Scope) Repository {
	return &repository{
		memstore: make(map[protocol.DocumentURI]protocol.TextDocumentItem),
		stats:    stats,
	}
}

func (r *repository) Get(ctx context.Context, doc protocol.TextDocumentIdentifier) (protocol.TextDocumentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.memstore[doc.URI]
	if !ok {
		return protocol.TextDocumentItem{}, &errors.DocumentNotFoundError{URI: doc.URI}
	}
	return item, nil
}

// Set stores the item, replacing any older version of the same document.
func (r *repository) Set(ctx context.Context, item protocol.TextDocumentItem) error {
	if item.URI == "" {
		return errors.New("can't save document without uri")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.memstore[item.URI] = item
	r.stats.Gauge("open_documents").Update(float64(len(r.memstore)))
	return nil
}

func (r *repository) Delete(ctx context.Context, doc protocol.TextDocumentIdentifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.memstore, doc.URI)
	r.stats.Gauge("open_documents").Update(float64(len(r.memstore)))
	return nil
}

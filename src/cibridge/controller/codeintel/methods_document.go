package codeintel

import (
	"context"

	"github.com/uber/cibridge/src/cibridge/mapper"
	"go.lsp.dev/protocol"
)

// DidOpen stores the document and starts the daemon in the background for handled languages.
func (c *controller) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	if err := c.documents.Set(ctx, params.TextDocument); err != nil {
		return err
	}
	if c.handles(params.TextDocument.LanguageID) {
		c.supervisor.Warm(ctx)
	}
	return nil
}

// DidChange replaces the stored text of the document.
func (c *controller) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	item, err := c.documents.Get(ctx, params.TextDocument.TextDocumentIdentifier)
	if err != nil {
		return err
	}

	text, err := mapper.ContentChangesToText(item.Text, params.ContentChanges)
	if err != nil {
		return err
	}

	item.Text = text
	item.Version = params.TextDocument.Version
	return c.documents.Set(ctx, item)
}

// DidClose forgets the document.
func (c *controller) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	return c.documents.Delete(ctx, params.TextDocument)
}

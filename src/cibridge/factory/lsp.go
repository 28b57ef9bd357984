package factory

import (
	"math/rand"

	"go.lsp.dev/protocol"
)

// Position returns a random protocol.Position.
func Position() protocol.Position {
	return protocol.Position{Line: uint32(rand.Intn(100)), Character: uint32(rand.Intn(100))}
}

// TextDocumentPositionParams returns params for the given document URI at a random position.
func TextDocumentPositionParams(docURI protocol.DocumentURI) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Position:     Position(),
	}
}

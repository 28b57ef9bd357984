package mapper

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/uber/cibridge/src/cibridge/entity"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const _optionTriggerCharacter = "triggerCharacter"

var _iconKinds = map[string]protocol.CompletionItemKind{
	"method":   protocol.CompletionItemKindMethod,
	"function": protocol.CompletionItemKindFunction,
	"property": protocol.CompletionItemKindProperty,
	"variable": protocol.CompletionItemKindVariable,
	"package":  protocol.CompletionItemKindModule,
	"class":    protocol.CompletionItemKindClass,
	"event":    protocol.CompletionItemKindEvent,
	"constant": protocol.CompletionItemKindConstant,
	"keyword":  protocol.CompletionItemKindKeyword,
}

// DocumentURIToPath returns the filesystem path of a document.
func DocumentURIToPath(docURI protocol.DocumentURI) string {
	return uri.URI(docURI).Filename()
}

// PositionToDaemonPosition converts an LSP position to the daemon's zero-based row and column.
func PositionToDaemonPosition(pos protocol.Position) entity.Position {
	return entity.Position{Row: int(pos.Line), Column: int(pos.Character)}
}

// CompletionParamsToPendingRequest builds a completions request for the document text.
func CompletionParamsToPendingRequest(params *protocol.CompletionParams, text string) entity.PendingRequest {
	req := entity.PendingRequest{
		Command:  entity.CommandCompletions,
		Path:     DocumentURIToPath(params.TextDocument.URI),
		Position: PositionToDaemonPosition(params.Position),
		Document: text,
	}
	if params.Context != nil && params.Context.TriggerCharacter != "" {
		req.Options = map[string]string{_optionTriggerCharacter: params.Context.TriggerCharacter}
	}
	return req
}

// DefinitionParamsToPendingRequest builds a goto_definitions request for the document text.
func DefinitionParamsToPendingRequest(params *protocol.DefinitionParams, text string) entity.PendingRequest {
	return entity.PendingRequest{
		Command:  entity.CommandGotoDefinition,
		Path:     DocumentURIToPath(params.TextDocument.URI),
		Position: PositionToDaemonPosition(params.Position),
		Document: text,
	}
}

// PayloadToCompletionList converts a completions payload into an LSP completion list.
func PayloadToCompletionList(payload json.RawMessage) (*protocol.CompletionList, error) {
	var candidates []entity.CompletionCandidate
	if err := json.Unmarshal(payload, &candidates); err != nil {
		return nil, fmt.Errorf("decoding completions: %w", err)
	}

	items := make([]protocol.CompletionItem, 0, len(candidates))
	for _, c := range candidates {
		if c.Name == "" {
			continue
		}
		item := protocol.CompletionItem{
			Label:      c.Name,
			Kind:       iconToKind(c.Icon),
			Detail:     c.Meta,
			InsertText: c.ReplaceText,
		}
		if item.InsertText == "" {
			item.InsertText = c.Name
		}
		if c.Doc != "" {
			item.Documentation = protocol.MarkupContent{Kind: protocol.PlainText, Value: c.Doc}
		}
		items = append(items, item)
	}
	return &protocol.CompletionList{Items: items}, nil
}

// PayloadToLocations converts a goto_definitions payload into LSP locations.
// Relative paths are taken relative to the filesystem root.
func PayloadToLocations(payload json.RawMessage) ([]protocol.Location, error) {
	var sites []entity.DefinitionSite
	if err := json.Unmarshal(payload, &sites); err != nil {
		return nil, fmt.Errorf("decoding definitions: %w", err)
	}

	locations := make([]protocol.Location, 0, len(sites))
	for _, s := range sites {
		if s.Path == "" {
			continue
		}
		path := s.Path
		if !filepath.IsAbs(path) {
			path = "/" + path
		}
		line := s.Row - 1
		if line < 0 {
			line = 0
		}
		column := s.Column
		if column < 0 {
			column = 0
		}
		pos := protocol.Position{Line: uint32(line), Character: uint32(column)}
		locations = append(locations, protocol.Location{
			URI:   protocol.DocumentURI(uri.File(path)),
			Range: protocol.Range{Start: pos, End: pos},
		})
	}
	return locations, nil
}

// ContentChangesToText applies full-document content changes in order.
func ContentChangesToText(current string, changes []protocol.TextDocumentContentChangeEvent) (string, error) {
	text := current
	for _, change := range changes {
		if change.Range != nil {
			return "", fmt.Errorf("ranged content change at line %d: only full document sync is supported", change.Range.Start.Line)
		}
		text = change.Text
	}
	return text, nil
}

// iconToKind maps daemon icon names such as "method" or "property2" to completion kinds.
func iconToKind(icon string) protocol.CompletionItemKind {
	if kind, ok := _iconKinds[strings.TrimSuffix(icon, "2")]; ok {
		return kind
	}
	return protocol.CompletionItemKindText
}

// Package codeintel implements the LSP facing business logic of cibridge.
package codeintel

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/controller/bridge"
	"github.com/uber/cibridge/src/cibridge/controller/supervisor"
	"github.com/uber/cibridge/src/cibridge/entity"
	ideclient "github.com/uber/cibridge/src/cibridge/gateway/ide-client"
	"github.com/uber/cibridge/src/cibridge/repository/document"
	"github.com/uber/cibridge/src/cibridge/repository/session"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey            = "codeintel"
	_configKeyCodeIntel = "codeintel"
	_serverName         = "cibridge"
)

var (
	_defaultLanguages         = []string{"php"}
	_defaultTriggerCharacters = []string{"$", ">", ":"}
)

// Module provides the codeintel controller.
var Module = fx.Provide(New)

// Controller orchestrates the business logic for each LSP request.
type Controller interface {
	// Lifecycle methods.
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Initialized(ctx context.Context, params *protocol.InitializedParams) error
	Shutdown(ctx context.Context) error
	Exit(ctx context.Context) error

	// Document methods.
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error

	// Code intel methods.
	Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error)
	GotoDefinition(ctx context.Context, params *protocol.DefinitionParams) ([]protocol.Location, error)

	// Status reports the state of the supervised daemon.
	Status(ctx context.Context) (*entity.DaemonStatus, error)

	// Connection bookkeeping.
	InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error)
	EndSession(ctx context.Context, id uuid.UUID) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Config     config.Provider
	Sessions   session.Repository
	Documents  document.Repository
	Bridge     bridge.Controller
	Supervisor supervisor.Controller
	IdeGateway ideclient.Gateway
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type codeIntelConfig struct {
	Languages         []string `yaml:"languages"`
	TriggerCharacters []string `yaml:"triggerCharacters"`
}

type controller struct {
	sessions   session.Repository
	documents  document.Repository
	bridge     bridge.Controller
	supervisor supervisor.Controller
	ideGateway ideclient.Gateway
	logger     *zap.SugaredLogger
	stats      tally.Scope

	languages         map[string]struct{}
	triggerCharacters []string
}

// New constructs the codeintel controller.
func New(p Params) (Controller, error) {
	cfg := codeIntelConfig{
		Languages:         _defaultLanguages,
		TriggerCharacters: _defaultTriggerCharacters,
	}
	if v := p.Config.Get(_configKeyCodeIntel); v.HasValue() {
		if err := v.Populate(&cfg); err != nil {
			return nil, fmt.Errorf("getting config field %q: %w", _configKeyCodeIntel, err)
		}
	}
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("missing field %q in config", _configKeyCodeIntel+".languages")
	}

	languages := make(map[string]struct{}, len(cfg.Languages))
	for _, l := range cfg.Languages {
		languages[l] = struct{}{}
	}

	return &controller{
		sessions:          p.Sessions,
		documents:         p.Documents,
		bridge:            p.Bridge,
		supervisor:        p.Supervisor,
		ideGateway:        p.IdeGateway,
		logger:            p.Logger.With("plugin", _nameKey),
		stats:             p.Stats.SubScope(_nameKey),
		languages:         languages,
		triggerCharacters: cfg.TriggerCharacters,
	}, nil
}

// handles reports whether requests for the language are sent to the daemon.
func (c *controller) handles(languageID protocol.LanguageIdentifier) bool {
	_, ok := c.languages[string(languageID)]
	return ok
}

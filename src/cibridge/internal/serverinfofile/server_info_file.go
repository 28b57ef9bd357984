// Package serverinfofile publishes how to reach a running cibridge instance.
package serverinfofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Fields published by cibridge components.
const (
	KeyLSPAddress = "lsp-address"
	KeyDaemonPort = "daemon-port"
	KeyDaemonPID  = "daemon-pid"

	// ConfigKey holds the location of the server info file.
	ConfigKey = "serverInfoFilePath"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ServerInfoFile is an interface to manage contents of a single server info file.
// It stores connection info (LSP address, daemon port and pid) for reference by editors and other tools.
type ServerInfoFile interface {
	UpdateField(key string, value string) error
}

type module struct {
	infofile     string
	logger       *zap.SugaredLogger
	fileContents map[string]string
	mu           sync.Mutex
}

// Params define values to be used by ServerInfoFile.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
}

// New creates a new ServerInfoFile which manages contents of a single server info file.
func New(p Params) (ServerInfoFile, error) {
	m := module{
		logger:       p.Logger,
		fileContents: make(map[string]string),
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: m.OnStop,
	})

	return &m, nil
}

// OnStop removes the file, but only if this instance wrote it.
func (m *module) OnStop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.infofile == "" || len(m.fileContents) == 0 {
		return nil
	}
	if err := os.Remove(m.infofile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// UpdateField sets one field and rewrites the whole file. Readers never observe a partial file.
func (m *module) UpdateField(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileContents[key] = value
	jsonOutput, err := json.Marshal(m.fileContents)
	if err != nil {
		return fmt.Errorf("marshalling json: %w", err)
	}

	tmp := m.infofile + ".tmp"
	if err := os.WriteFile(tmp, jsonOutput, 0644); err != nil {
		return fmt.Errorf("creating info file: %w", err)
	}
	if err := os.Rename(tmp, m.infofile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing info file: %w", err)
	}
	m.logger.Infow("connection info saved", zap.String("file", m.infofile), zap.String(key, value))
	return nil
}

func (m *module) processConfig(cfg config.Provider) error {
	path, err := PathFromConfig(cfg)
	if err != nil {
		return err
	}
	m.infofile = path
	return nil
}

// PathFromConfig returns the configured server info file location.
func PathFromConfig(cfg config.Provider) (string, error) {
	var path string
	if err := cfg.Get(ConfigKey).Populate(&path); err != nil {
		// incorrectly formatted config
		return "", fmt.Errorf("getting config field %q: %w", ConfigKey, err)
	}
	if path == "" {
		// yaml is missing either the key or value
		return "", fmt.Errorf("missing field %q in config", ConfigKey)
	}
	return filepath.Clean(path), nil
}

// Read loads the fields published by a running instance.
func Read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no running cibridge server found at %s", path)
		}
		return nil, fmt.Errorf("reading info file: %w", err)
	}

	fields := make(map[string]string)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing info file %s: %w", path, err)
	}
	return fields, nil
}

type inMemory struct {
	mu     sync.Mutex
	fields map[string]string
}

// NewInMemory returns a ServerInfoFile that keeps its fields in memory, for short lived commands that must not replace the file of a running server.
func NewInMemory() ServerInfoFile {
	return &inMemory{fields: make(map[string]string)}
}

func (m *inMemory) UpdateField(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[key] = value
	return nil
}

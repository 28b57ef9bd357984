package app

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/uber/cibridge/src/cibridge/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Context describes where the service runs.
type Context struct {
	Environment        string `yaml:"environment"`
	RuntimeEnvironment string `yaml:"runtimeEnvironment"`
}

const (
	// EnvLocal indicates that the service is running locally.
	EnvLocal = "local"

	// EnvDevelopment indicates that the service is running in a development environment.
	EnvDevelopment = "development"

	_envCibridgeEnvironment = "CIBRIDGE_ENVIRONMENT"
	_configKeyInfoFile      = "serverInfoFilePath"
	_stdStreamPrefix        = "std"
)

func decorateEnvContext(env Context) Context {
	envValue := EnvLocal
	if os.Getenv(_envCibridgeEnvironment) == EnvDevelopment {
		envValue = EnvDevelopment
	}

	env.Environment = envValue
	env.RuntimeEnvironment = envValue
	return env
}

// DecorateConfigParams is the set of dependencies required to decorate the config.Provider.
type DecorateConfigParams struct {
	fx.In

	Env Context
	Cfg config.Provider
	FS  fs.BridgeFS
}

// decorateConfigProvider runs startup steps that depend on configuration before any other component reads it.
func decorateConfigProvider(p DecorateConfigParams) (config.Provider, error) {
	if err := ensureLogFolder(p.Cfg, p.FS); err != nil {
		return nil, fmt.Errorf("ensuring log folder: %w", err)
	}
	if err := ensureInfoFileFolder(p.Cfg, p.FS); err != nil {
		return nil, fmt.Errorf("ensuring server info folder: %w", err)
	}

	return p.Cfg, nil
}

// ensureLogFolder creates the directories of every configured log file.
func ensureLogFolder(cfg config.Provider, fs fs.BridgeFS) error {
	var c zap.Config
	if err := cfg.Get("logging").Populate(&c); err != nil {
		return fmt.Errorf("loading logging config: %w", err)
	}

	for _, outputPath := range c.OutputPaths {
		if strings.HasPrefix(outputPath, _stdStreamPrefix) {
			continue
		}
		if err := fs.MkdirAll(path.Dir(outputPath)); err != nil {
			return fmt.Errorf("creating logging directory: %w", err)
		}
	}

	return nil
}

// ensureInfoFileFolder creates the directory holding the server info file, which lives under the home directory by default.
func ensureInfoFileFolder(cfg config.Provider, fs fs.BridgeFS) error {
	var infoFile string
	if err := cfg.Get(_configKeyInfoFile).Populate(&infoFile); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyInfoFile, err)
	}
	if infoFile == "" {
		return nil
	}

	return fs.MkdirAll(path.Dir(infoFile))
}

package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name          string
		loggingConfig string
		expectedLevel zapcore.Level
		expectError   bool
	}{
		{
			name: "info level json encoding",
			loggingConfig: `
logging:
  level: info
  development: false
  encoding: json
  outputPaths:
    - stderr
`,
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name: "debug level console encoding",
			loggingConfig: `
logging:
  level: debug
  development: true
  encoding: console
`,
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name: "error level default encoding",
			loggingConfig: `
logging:
  level: error
  development: false
`,
			expectedLevel: zapcore.ErrorLevel,
		},
		{
			name: "invalid level",
			loggingConfig: `
logging:
  level: invalid
  encoding: json
`,
			expectError: true,
		},
		{
			name: "unopenable output path",
			loggingConfig: `
logging:
  level: info
  outputPaths:
    - /nonexistent-dir/for/cibridge/log.txt
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewYAML(
				config.Source(strings.NewReader(tt.loggingConfig)),
			)
			require.NoError(t, err)

			sugared, err := NewSugaredLogger(provider)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger := NewLogger(sugared)
			require.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(tt.expectedLevel))
			if tt.expectedLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.expectedLevel-1))
			}
		})
	}
}

func TestLoggingConfig_Populate(t *testing.T) {
	configYAML := strings.NewReader(`
logging:
  level: warn
  development: true
  encoding: console
  outputPaths:
    - stdout
    - stderr
`)

	provider, err := config.NewYAML(config.Source(configYAML))
	require.NoError(t, err)

	var loggingConfig LoggingConfig
	err = provider.Get("logging").Populate(&loggingConfig)
	require.NoError(t, err)

	assert.Equal(t, "warn", loggingConfig.Level)
	assert.True(t, loggingConfig.Development)
	assert.Equal(t, "console", loggingConfig.Encoding)
	assert.Equal(t, []string{"stdout", "stderr"}, loggingConfig.OutputPaths)
}

func TestLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "cibridge.log")
	provider, err := config.NewYAML(config.Source(strings.NewReader(`
logging:
  level: debug
  encoding: json
  outputPaths:
    - ` + logPath + `
`)))
	require.NoError(t, err)

	logger, err := NewSugaredLogger(provider)
	require.NoError(t, err)

	logger.Infow("daemon listening", "port", 10881)
	require.NoError(t, logger.Sync())

	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"msg":"daemon listening"`)
	assert.Contains(t, string(contents), `"port":10881`)
	assert.Contains(t, string(contents), fmt.Sprintf(`"pid":%d`, os.Getpid()))
}

func TestLogger_InitialFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "cibridge.log")
	provider, err := config.NewYAML(config.Source(strings.NewReader(`
logging:
  level: info
  encoding: json
  outputPaths:
    - ` + logPath + `
  initialFields:
    service: cibridge
    workspace: /home/user/www
`)))
	require.NoError(t, err)

	logger, err := NewSugaredLogger(provider)
	require.NoError(t, err)
	logger.Info("started")
	require.NoError(t, logger.Sync())

	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"service":"cibridge","workspace":"/home/user/www"`)
}

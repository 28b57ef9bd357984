package logfilewriter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/uber/cibridge/src/cibridge/internal/fs"
	"github.com/uber/cibridge/src/cibridge/internal/serverinfofile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	_fmtOutputKey = "output:%s"
	_daemonOutput = "daemon"
)

// Module provides the output file for raw daemon output.
var Module = fx.Provide(func(p Params) (OutputFile, error) {
	return SetupOutputFile(p, _daemonOutput)
})

// Params define the dependencies for SetupOutputFile.
type Params struct {
	fx.In

	FS             fs.BridgeFS
	Lifecycle      fx.Lifecycle
	ServerInfoFile serverinfofile.ServerInfoFile
}

// OutputFile collects raw daemon output in a temporary file, independent of overall server logging.
type OutputFile interface {
	// Writer returns a writer whose lines are tagged with the daemon generation that produced them.
	Writer(generation uint64) io.Writer
	// Path returns the location of the output file.
	Path() string
}

// SetupOutputFile creates a temporary file for human readable daemon output.
// The file path will be stored in the server info file for reference by editors.
func SetupOutputFile(p Params, name string) (OutputFile, error) {
	logsDirPath := filepath.Join(os.TempDir(), name)
	err := p.FS.MkdirAll(logsDirPath)
	if err != nil {
		return nil, err
	}

	logFile, err := p.FS.TempFile(logsDirPath, "")
	if err != nil {
		return nil, err
	}

	if err := p.ServerInfoFile.UpdateField(fmt.Sprintf(_fmtOutputKey, name), logFile.Name()); err != nil {
		logFile.Close()
		return nil, err
	}

	// Write via a logger for formatting, timestamp, and performance/buffering.
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)
	outputLogger := zap.New(core).Sugar()

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			outputLogger.Sync()
			logFile.Close()
			return p.FS.Remove(logFile.Name())
		},
	})

	return &outputFile{logger: outputLogger, path: logFile.Name()}, nil
}

type outputFile struct {
	logger *zap.SugaredLogger
	path   string
}

func (o *outputFile) Writer(generation uint64) io.Writer {
	return &loggerWriter{logger: o.logger.With("generation", generation)}
}

func (o *outputFile) Path() string {
	return o.path
}

type loggerWriter struct {
	logger *zap.SugaredLogger
}

// Write implements the io.Writer interface by sending data to the given logger.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	// Incoming data may contain multiple lines, including blank ones.
	for _, line := range strings.Split(string(p), "\n") {
		if len(line) > 0 {
			o.logger.Info(line)
		}
	}

	return len(p), nil
}

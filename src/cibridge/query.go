package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/controller/bridge"
	healthmonitor "github.com/uber/cibridge/src/cibridge/controller/health-monitor"
	"github.com/uber/cibridge/src/cibridge/controller/supervisor"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/gateway"
	handler "github.com/uber/cibridge/src/cibridge/handler/codeintel"
	"github.com/uber/cibridge/src/cibridge/internal/clock"
	"github.com/uber/cibridge/src/cibridge/internal/core"
	"github.com/uber/cibridge/src/cibridge/internal/executor"
	"github.com/uber/cibridge/src/cibridge/internal/fs"
	"github.com/uber/cibridge/src/cibridge/internal/jsonrpcfx"
	"github.com/uber/cibridge/src/cibridge/internal/logfilewriter"
	"github.com/uber/cibridge/src/cibridge/internal/process"
	"github.com/uber/cibridge/src/cibridge/internal/serverinfofile"
	"go.uber.org/config"
	"go.uber.org/fx"
)

type queryFlags struct {
	mode   string
	path   string
	row    int
	column int
	status bool
}

// queryOpts builds a daemon bridge without the LSP inbound. Connection info stays in memory so a running server's info file is left alone.
func queryOpts() fx.Option {
	return fx.Options(
		core.ConfigModule,
		core.LoggerModule,
		fs.Module,
		clock.Module,
		executor.Module,
		process.Module,
		logfilewriter.Module,
		gateway.Module,
		fx.Provide(serverinfofile.NewInMemory),
		fx.Provide(func() tally.Scope { return tally.NoopScope }),
		fx.Provide(healthmonitor.New),
		fx.Provide(supervisor.New),
		bridge.Module,
		fx.NopLogger,
	)
}

func newQueryCommand() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Send one request to the daemon, reading the document from stdin",
		Example: "  cibridge query --mode completions --path f.php --row 3 --column 5 < f.php\n" +
			"  cibridge query --status",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.status {
				cfg, err := core.NewConfig()
				if err != nil {
					return err
				}
				return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
			}

			req, err := flags.pendingRequest(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runQuery(cmd.Context(), cmd.OutOrStdout(), req)
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", string(entity.CommandCompletions), "daemon command: completions or goto_definitions")
	cmd.Flags().StringVar(&flags.path, "path", "", "path of the document, relative to the project root")
	cmd.Flags().IntVar(&flags.row, "row", 1, "1-based line of the cursor")
	cmd.Flags().IntVar(&flags.column, "column", 0, "characters before the cursor on its line")
	cmd.Flags().BoolVar(&flags.status, "status", false, "print the daemon state of the running server instead")
	return cmd
}

func (f queryFlags) pendingRequest(stdin io.Reader) (entity.PendingRequest, error) {
	command := entity.Command(f.mode)
	if !command.Valid() {
		return entity.PendingRequest{}, fmt.Errorf("unknown mode %q", f.mode)
	}
	if f.path == "" {
		return entity.PendingRequest{}, errors.New("--path is required")
	}
	if f.row < 1 || f.column < 0 {
		return entity.PendingRequest{}, fmt.Errorf("invalid position %d:%d", f.row, f.column)
	}

	document, err := io.ReadAll(stdin)
	if err != nil {
		return entity.PendingRequest{}, fmt.Errorf("reading document: %w", err)
	}

	return entity.PendingRequest{
		Command:  command,
		Path:     f.path,
		Position: entity.Position{Row: f.row - 1, Column: f.column},
		Document: string(document),
	}, nil
}

// runQuery starts the daemon if no server owns one yet, prints the raw payload and stops whatever it started.
func runQuery(ctx context.Context, out io.Writer, req entity.PendingRequest) (err error) {
	var ctrl bridge.Controller
	app := fx.New(queryOpts(), fx.Populate(&ctrl))
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := app.Stop(context.Background()); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	result, err := ctrl.Invoke(ctx, req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(result.Payload))
	return err
}

// printStatus asks the server published in the info file for its daemon state.
func printStatus(ctx context.Context, out io.Writer, cfg config.Provider) error {
	path, err := serverinfofile.PathFromConfig(cfg)
	if err != nil {
		return err
	}
	fields, err := serverinfofile.Read(path)
	if err != nil {
		return err
	}
	address, ok := fields[serverinfofile.KeyLSPAddress]
	if !ok {
		return fmt.Errorf("%s has no %q field", path, serverinfofile.KeyLSPAddress)
	}

	var status entity.DaemonStatus
	if err := jsonrpcfx.Call(ctx, address, handler.MethodStatus, nil, &status); err != nil {
		return err
	}

	fmt.Fprintln(out, status.String())
	if status.LastError != "" {
		fmt.Fprintf(out, "last error: %s\n", status.LastError)
	}
	return nil
}

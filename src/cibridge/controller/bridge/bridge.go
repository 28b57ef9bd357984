// Package bridge forwards code intelligence requests to the supervised daemon.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/controller/supervisor"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/internal/clock"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _nameKey = "bridge"

// Module provides the bridge and its transport.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(NewTransport),
)

// Controller sends requests to the daemon.
type Controller interface {
	// Invoke makes sure the daemon runs and performs the exchange, respawning the daemon at most once per request.
	Invoke(ctx context.Context, req entity.PendingRequest) (*entity.Result, error)
}

// Params are inbound parameters to initialize a new bridge.
type Params struct {
	fx.In

	Supervisor supervisor.Controller
	Transport  Transport
	Clock      clock.Clock
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type controller struct {
	supervisor supervisor.Controller
	transport  Transport
	clock      clock.Clock
	logger     *zap.SugaredLogger
	stats      tally.Scope
}

// New creates a bridge.
func New(p Params) Controller {
	return &controller{
		supervisor: p.Supervisor,
		transport:  p.Transport,
		clock:      p.Clock,
		logger:     p.Logger.With("plugin", _nameKey),
		stats:      p.Stats.SubScope(_nameKey),
	}
}

func (c *controller) Invoke(ctx context.Context, req entity.PendingRequest) (*entity.Result, error) {
	if !req.Command.Valid() {
		return nil, fmt.Errorf("unknown daemon command %q", req.Command)
	}

	dontRetry, err := c.supervisor.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	start := c.clock.Now()
	resp, err := c.transport.Exchange(ctx, &req)
	if err != nil {
		if cibridgeerrors.IsNoServer(err) && !dontRetry && !req.Retried {
			c.stats.Counter("retries").Inc(1)
			c.logger.Infow("daemon not reachable, restarting", "command", req.Command)
			if err := c.supervisor.Discard(ctx); err != nil {
				return nil, err
			}
			req.Retried = true
			return c.Invoke(ctx, req)
		}
		c.stats.Counter("failures").Inc(1)
		return nil, fmt.Errorf("%w: %w", cibridgeerrors.ErrDaemonFailed, err)
	}

	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		c.logger.Warnw("daemon answered with an error status", "command", req.Command, "status", resp.StatusCode)
	}
	if !json.Valid(resp.Body) {
		c.stats.Counter("malformed_responses").Inc(1)
		return nil, &cibridgeerrors.MalformedResponseError{Body: string(resp.Body)}
	}

	roundTrip := c.clock.Now().Sub(start)
	c.stats.Tagged(map[string]string{"command": string(req.Command)}).Timer("round_trip").Record(roundTrip)
	c.stats.Tagged(map[string]string{"command": string(req.Command)}).Timer("server_time").Record(resp.ServerTime)
	c.logger.Infof("%s in %dms (server: %dms): %s",
		req.Command, roundTrip.Milliseconds(), resp.ServerTime.Milliseconds(), req.LinePrefix())

	return &entity.Result{
		Payload:    json.RawMessage(resp.Body),
		RoundTrip:  roundTrip,
		ServerTime: resp.ServerTime,
	}, nil
}

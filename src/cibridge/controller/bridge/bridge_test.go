package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/controller/bridge"
	"github.com/uber/cibridge/src/cibridge/controller/bridge/bridgemock"
	"github.com/uber/cibridge/src/cibridge/controller/supervisor/supervisormock"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/internal/clock/clockmock"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type harness struct {
	supervisor *supervisormock.MockController
	transport  *bridgemock.MockTransport
	clock      *clockmock.MockClock
	stats      tally.TestScope
	logs       *observer.ObservedLogs
	bridge     bridge.Controller
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	core, logs := observer.New(zap.InfoLevel)
	h := &harness{
		supervisor: supervisormock.NewMockController(ctrl),
		transport:  bridgemock.NewMockTransport(ctrl),
		clock:      clockmock.NewMockClock(ctrl),
		stats:      tally.NewTestScope("", nil),
		logs:       logs,
	}
	h.bridge = bridge.New(bridge.Params{
		Supervisor: h.supervisor,
		Transport:  h.transport,
		Clock:      h.clock,
		Logger:     zap.New(core).Sugar(),
		Stats:      h.stats,
	})
	return h
}

func completionRequest() entity.PendingRequest {
	return entity.PendingRequest{
		Command:  entity.CommandCompletions,
		Path:     "/src/index.php",
		Position: entity.Position{Row: 1, Column: 6},
		Document: "<?php\n$foo->bar();\n",
	}
}

func TestInvokeSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Unix(1000, 0)

	h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil)
	gomock.InOrder(
		h.clock.EXPECT().Now().Return(start),
		h.clock.EXPECT().Now().Return(start.Add(25*time.Millisecond)),
	)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req *entity.PendingRequest) (*bridge.Response, error) {
			assert.Equal(t, entity.CommandCompletions, req.Command)
			assert.False(t, req.Retried)
			return &bridge.Response{Body: []byte(`[{"name":"bar"}]`), ServerTime: 10 * time.Millisecond}, nil
		})

	result, err := h.bridge.Invoke(ctx, completionRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"bar"}]`, string(result.Payload))
	assert.Equal(t, 25*time.Millisecond, result.RoundTrip)
	assert.Equal(t, 10*time.Millisecond, result.ServerTime)

	entries := h.logs.FilterMessage("completions in 25ms (server: 10ms): $foo->").All()
	assert.Len(t, entries, 1)

	timers := h.stats.Snapshot().Timers()
	require.Contains(t, timers, "bridge.round_trip+command=completions")
	assert.Equal(t, []time.Duration{25 * time.Millisecond}, timers["bridge.round_trip+command=completions"].Values())
}

func TestInvokeEnsureReadyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "still starting", err: cibridgeerrors.ErrStillStarting},
		{name: "crash", err: &cibridgeerrors.CrashError{ExitCode: 1, Output: "No module named codeintel"}},
		{name: "spawn", err: &cibridgeerrors.SpawnError{Command: "bash", Err: errors.New("no bash")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.supervisor.EXPECT().EnsureReady(gomock.Any()).Return(true, tt.err)

			_, err := h.bridge.Invoke(context.Background(), completionRequest())
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestInvokeRetriesOnceWhenNoServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	noServer := errors.Join(cibridgeerrors.ErrNoServer, errors.New("connection refused"))

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	gomock.InOrder(
		h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil),
		h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(nil, noServer),
		h.supervisor.EXPECT().Discard(ctx).Return(nil),
		h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil),
		h.transport.EXPECT().Exchange(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, req *entity.PendingRequest) (*bridge.Response, error) {
				assert.True(t, req.Retried)
				return &bridge.Response{Body: []byte(`[]`)}, nil
			}),
	)

	result, err := h.bridge.Invoke(ctx, completionRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(result.Payload))
	assert.Equal(t, int64(1), h.stats.Snapshot().Counters()["bridge.retries+"].Value())
}

func TestInvokeRetryBound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	noServer := errors.Join(cibridgeerrors.ErrNoServer, errors.New("connection refused"))

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil).Times(2)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(nil, noServer).Times(2)
	h.supervisor.EXPECT().Discard(ctx).Return(nil).Times(1)

	_, err := h.bridge.Invoke(ctx, completionRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, cibridgeerrors.ErrDaemonFailed)
	assert.Equal(t, int64(1), h.stats.Snapshot().Counters()["bridge.failures+"].Value())
}

func TestInvokeNoRetryWhenDontRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	h.supervisor.EXPECT().EnsureReady(ctx).Return(true, nil)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(nil, cibridgeerrors.ErrNoServer)

	_, err := h.bridge.Invoke(ctx, completionRequest())
	assert.ErrorIs(t, err, cibridgeerrors.ErrDaemonFailed)
	assert.EqualError(t, err, "daemon failed or not responding: no daemon server reachable")
}

func TestInvokeNoRetryForOtherFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(nil, errors.New("daemon returned 500"))

	_, err := h.bridge.Invoke(ctx, completionRequest())
	assert.ErrorIs(t, err, cibridgeerrors.ErrDaemonFailed)
}

func TestInvokeDiscardFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stopped := errors.New("supervisor stopped")

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(nil, cibridgeerrors.ErrNoServer)
	h.supervisor.EXPECT().Discard(ctx).Return(stopped)

	_, err := h.bridge.Invoke(ctx, completionRequest())
	assert.Equal(t, stopped, err)
}

func TestInvokeMalformedResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(&bridge.Response{StatusCode: 500, Body: []byte("Traceback (most recent call last)")}, nil)

	_, err := h.bridge.Invoke(ctx, completionRequest())
	var malformed *cibridgeerrors.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "Traceback (most recent call last)", malformed.Body)
	assert.Equal(t, int64(1), h.stats.Snapshot().Counters()["bridge.malformed_responses+"].Value())
}

func TestInvokeErrorStatusWithPayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	h.supervisor.EXPECT().EnsureReady(ctx).Return(false, nil)
	h.transport.EXPECT().Exchange(ctx, gomock.Any()).Return(&bridge.Response{StatusCode: 500, Body: []byte(`[]`)}, nil)

	result, err := h.bridge.Invoke(ctx, completionRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(result.Payload))
	assert.Equal(t, 1, h.logs.FilterMessage("daemon answered with an error status").Len())
}

func TestInvokeUnknownCommand(t *testing.T) {
	h := newHarness(t)
	req := completionRequest()
	req.Command = "hover"

	_, err := h.bridge.Invoke(context.Background(), req)
	assert.EqualError(t, err, `unknown daemon command "hover"`)
}

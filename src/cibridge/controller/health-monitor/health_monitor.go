package healthmonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/entity"
	ideclient "github.com/uber/cibridge/src/cibridge/gateway/ide-client"
	"github.com/uber/cibridge/src/cibridge/internal/clock"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey                      = "health-monitor"
	_configKeyIndexingNoticeDelay = "daemon.indexingNoticeDelay"
	_defaultIndexingNoticeDelay   = 3 * time.Second

	_noticeTitle        = "CodeIntel"
	_noticeMessageFmt   = "Updating indexes for %s"
	_noticeFinishedText = "Updated indexes"
)

// Controller turns daemon diagnostic lines into health signals and presents the ones meant for the user.
type Controller interface {
	// Observe classifies a line and applies its side effects on the indexing notice and warnings.
	Observe(ctx context.Context, line string) entity.HealthSignal
	// Reset cancels a pending indexing notice and hides a shown one.
	Reset(ctx context.Context)
}

// Params are inbound parameters to initialize a new health monitor.
type Params struct {
	fx.In

	Config     config.Provider
	IdeGateway ideclient.Gateway
	Clock      clock.Clock
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type controller struct {
	ideGateway ideclient.Gateway
	clock      clock.Clock
	logger     *zap.SugaredLogger
	stats      tally.Scope
	delay      time.Duration

	mu sync.Mutex
	// seq identifies the latest indexing notice request. Timers and shows carrying an older value are superseded.
	seq   uint64
	timer clock.Timer
	shown *protocol.ProgressToken
}

// New creates a health monitor.
func New(p Params) (Controller, error) {
	c := &controller{
		ideGateway: p.IdeGateway,
		clock:      p.Clock,
		logger:     p.Logger.With("plugin", _nameKey),
		stats:      p.Stats.SubScope("health_monitor"),
		delay:      _defaultIndexingNoticeDelay,
	}

	if v := p.Config.Get(_configKeyIndexingNoticeDelay); v.HasValue() {
		if err := v.Populate(&c.delay); err != nil {
			return nil, fmt.Errorf("getting config field %q: %w", _configKeyIndexingNoticeDelay, err)
		}
	}
	return c, nil
}

func (c *controller) Observe(ctx context.Context, line string) entity.HealthSignal {
	signal := Classify(line)
	switch signal.Kind {
	case entity.SignalIndexingStarted:
		c.scheduleNotice(signal.Target)
	case entity.SignalIndexingFinished:
		c.clearNotice(ctx, _noticeFinishedText)
	case entity.SignalWarning:
		c.showWarning(ctx, signal.Text)
	}
	if signal.Kind != entity.SignalNone {
		c.stats.Tagged(map[string]string{"signal": signal.Kind.String()}).Counter("signals").Inc(1)
	}
	return signal
}

func (c *controller) Reset(ctx context.Context) {
	c.clearNotice(ctx, "")
}

// scheduleNotice replaces any pending notice with one that appears after the configured delay.
func (c *controller) scheduleNotice(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.seq++
	seq := c.seq
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.showNotice(seq, target)
	})
}

func (c *controller) showNotice(seq uint64, target string) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	ctx := context.Background()
	token, err := c.ideGateway.BeginProgress(ctx, _noticeTitle, fmt.Sprintf(_noticeMessageFmt, target))
	if err != nil {
		c.logger.Warnf("showing indexing notice: %v", err)
	}

	c.mu.Lock()
	if seq != c.seq {
		// Finished or replaced while the notice was being shown.
		c.mu.Unlock()
		c.endNotice(ctx, &token, "")
		return
	}
	previous := c.shown
	c.shown = &token
	c.mu.Unlock()

	c.stats.Counter("indexing_notices").Inc(1)
	c.endNotice(ctx, previous, "")
}

func (c *controller) clearNotice(ctx context.Context, message string) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.seq++
	shown := c.shown
	c.shown = nil
	c.mu.Unlock()

	c.endNotice(ctx, shown, message)
}

func (c *controller) endNotice(ctx context.Context, token *protocol.ProgressToken, message string) {
	if token == nil {
		return
	}
	if err := c.ideGateway.EndProgress(ctx, *token, message); err != nil {
		c.logger.Warnf("hiding indexing notice: %v", err)
	}
}

func (c *controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *controller) showWarning(ctx context.Context, text string) {
	c.logger.Warnw("daemon warning", "line", text)
	if err := c.ideGateway.ShowMessage(ctx, &protocol.ShowMessageParams{
		Type:    protocol.MessageTypeError,
		Message: text,
	}); err != nil {
		c.logger.Warnf("showing daemon warning: %v", err)
	}
}

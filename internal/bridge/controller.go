// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/rcsbridge/internal/metrics"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// ConfigPollRate is the service configurable holding the poll rate
const ConfigPollRate = "prate"

// Config holds the controller settings chosen at startup
type Config struct {
	Address      int
	PollRate     int // default for ConfigPollRate on first run
	PollTimeout  int // ticks, 0 disables
	QueueSize    int // 0 means unbounded
	DiffMode     DiffMode
	TickInterval time.Duration

	// TraceMessages logs every bus message in and out
	TraceMessages bool
}

// DefaultConfig returns the settings used when no flags are given
func DefaultConfig() Config {
	return Config{
		Address:      rcs.DefaultAddress,
		PollRate:     DefaultPollRate,
		PollTimeout:  DefaultPollTimeout,
		QueueSize:    DefaultQueueSize,
		DiffMode:     DiffPositional,
		TickInterval: time.Second,
	}
}

// Snapshot is a read-only view of controller state
type Snapshot struct {
	Address     int            `json:"address"`
	PollRate    int            `json:"poll_rate"`
	PollPending bool           `json:"poll_pending"`
	QueueDepth  int            `json:"queue_depth"`
	QueueSize   int            `json:"queue_size"`
	LastStatus  string         `json:"last_status"`
	LastLine    string         `json:"last_line"`
	LastLineAt  time.Time      `json:"last_line_at"`
	Stats       rcs.Statistics `json:"stats"`
}

type lineEvent struct {
	line string
	err  error
}

// Controller owns the queue, scheduler and status state of one bridge.
// All state is touched only by the goroutine running Run; the Deliver
// methods are safe to call from any goroutine.
type Controller struct {
	cfg        Config
	link       io.Writer
	pub        bus.Publisher
	svc        *bus.Service
	log        *zap.SugaredLogger
	metrics    *metrics.Metrics
	queue      *CommandQueue
	sched      *Scheduler
	translator *Translator
	stats      *rcs.Statistics

	lastStatus string
	lastLine   string
	lastLineAt time.Time

	messages chan *bus.Message
	lines    chan lineEvent
	done     chan struct{}

	snapMu sync.Mutex
	snap   Snapshot
}

// New creates a controller writing commands to link and publishing reports
// through pub. The poll rate configurable is registered on svc.
func New(cfg Config, link io.Writer, pub bus.Publisher, svc *bus.Service, log *zap.SugaredLogger, m *metrics.Metrics) (*Controller, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PollRate == 0 {
		cfg.PollRate = DefaultPollRate
	}

	queue := NewCommandQueue(cfg.QueueSize)
	sched, err := NewScheduler(queue, cfg.Address, cfg.PollRate, cfg.PollTimeout)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:        cfg,
		link:       link,
		pub:        pub,
		svc:        svc,
		log:        log,
		metrics:    m,
		queue:      queue,
		sched:      sched,
		translator: &Translator{Address: cfg.Address},
		stats:      rcs.NewStatistics(),
		messages:   make(chan *bus.Message, 16),
		lines:      make(chan lineEvent, 16),
		done:       make(chan struct{}),
	}

	if err := svc.AddConfigurable(ConfigPollRate, strconv.Itoa(cfg.PollRate), true); err != nil {
		return nil, fmt.Errorf("register %s: %w", ConfigPollRate, err)
	}
	c.applyPollRate()
	svc.OnConfigChanged(func(name string) {
		if name == ConfigPollRate {
			c.applyPollRate()
		}
	})

	c.updateSnapshot()
	return c, nil
}

// Prime wakes the thermostat link: it writes a bare terminator, waits for
// the line to settle and discards whatever arrived meanwhile.
func (c *Controller) Prime(ctx context.Context, flush func() error) error {
	if _, err := c.link.Write([]byte(rcs.LineTerminator)); err != nil {
		return fmt.Errorf("prime link: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}
	if flush != nil {
		if err := flush(); err != nil {
			return fmt.Errorf("flush link: %w", err)
		}
	}
	return nil
}

// Deliver queues an inbound bus message for the event loop. It blocks
// while the loop is busy and returns false once the loop has stopped.
func (c *Controller) Deliver(msg *bus.Message) bool {
	if c.stopped() {
		return false
	}
	select {
	case c.messages <- msg:
		return true
	case <-c.done:
		return false
	}
}

// DeliverLine queues a complete status line, or a link decode error, for
// the event loop.
func (c *Controller) DeliverLine(line string, err error) bool {
	if c.stopped() {
		return false
	}
	select {
	case c.lines <- lineEvent{line: line, err: err}:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Run is the event loop. It dispatches one bus message, link line or tick
// at a time until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.svc.SetEnabled(true)
	defer c.svc.SetEnabled(false)
	c.log.Infow("bridge running",
		"address", c.cfg.Address,
		"poll_rate", c.sched.PollRate(),
		"poll_timeout", c.cfg.PollTimeout,
		"diff", c.cfg.DiffMode.String())

	for {
		select {
		case <-ctx.Done():
			c.log.Info(c.stats.String())
			return nil
		case msg := <-c.messages:
			c.HandleMessage(ctx, msg)
		case ev := <-c.lines:
			if ev.err != nil {
				c.stats.Update(ev.err, nil)
				c.log.Warnw("link decode error", "error", ev.err)
				c.updateSnapshot()
				continue
			}
			c.HandleLine(ctx, ev.line)
		case <-ticker.C:
			c.HandleTick()
		}
	}
}

// HandleMessage acts on an inbound bus message. Only commands addressed
// directly to this service are considered, and only while it is enabled.
func (c *Controller) HandleMessage(ctx context.Context, msg *bus.Message) {
	if !c.svc.Enabled() {
		return
	}
	if c.cfg.TraceMessages {
		c.log.Debugw("bus message in",
			"kind", msg.Kind.String(),
			"source", msg.Source,
			"target", msg.Target,
			"schema", msg.Schema.String(),
			"body", msg.Body)
	}
	if msg.Kind != bus.KindCommand || msg.IsBroadcast() || !msg.IsFor(c.svc.ID()) {
		return
	}

	switch {
	case msg.Schema.Is(bus.SchemaConfigResponse):
		changed, err := c.svc.ApplyConfig(msg)
		if err != nil {
			c.log.Errorw("failed to persist configuration", "error", err)
		}
		c.log.Infow("configuration received", "changed", changed)
		return
	case msg.Schema.Is(bus.SchemaConfigCurrent), msg.Schema.Is(bus.SchemaConfigList):
		reply := c.svc.ConfigMessage(msg.Schema)
		reply.Target = msg.Source
		c.publish(ctx, reply)
		return
	case msg.Schema.Is(bus.SchemaHVACRequest):
		c.log.Debugw("status request ignored", "source", msg.Source)
		return
	}

	entry, ok, err := c.translator.Translate(msg)
	if err != nil {
		c.reject(msg, err)
		return
	}
	if !ok {
		return
	}
	if err := c.queue.Enqueue(entry); err != nil {
		c.reject(msg, err)
		return
	}

	c.metrics.CommandsQueued.WithLabelValues(entry.Kind.String()).Inc()
	c.metrics.QueueDepth.Set(float64(c.queue.Len()))
	c.log.Debugw("command queued", "command", entry.Text, "kind", entry.Kind.String(), "depth", c.queue.Len())
	c.updateSnapshot()
}

func (c *Controller) reject(msg *bus.Message, err error) {
	c.metrics.CommandsRejected.WithLabelValues(rejectReason(err)).Inc()
	c.log.Warnw("command rejected",
		"source", msg.Source,
		"schema", msg.Schema.String(),
		"error", err)
}

// HandleLine interprets a complete line from the thermostat. A line that
// follows a poll is diffed against the last report and sent as a trigger;
// any other line is a command response and is sent as a full status report.
func (c *Controller) HandleLine(ctx context.Context, line string) {
	c.lastLine = line
	c.lastLineAt = time.Now()

	anomalies := rcs.ValidateStatus(line, c.cfg.Address)
	c.stats.Update(nil, anomalies)
	for _, a := range anomalies {
		c.log.Debugw("status anomaly", "type", a.Type.String(), "detail", a.Message)
	}

	if c.sched.ClearPollPending() {
		if line != c.lastStatus {
			delta := Diff(c.lastStatus, line, c.cfg.DiffMode)
			if delta.Err != nil {
				c.malformed(line, delta.Err)
			}
			if !delta.Empty() {
				c.publish(ctx, TriggerMessage(c.svc.ID(), delta.Changed))
				c.metrics.Reports.WithLabelValues("trigger").Inc()
			}
		}
		c.lastStatus = line
	} else {
		fields, err := rcs.ParseStatus(line)
		if err != nil {
			c.malformed(line, err)
		}
		c.publish(ctx, StatusMessage(c.svc.ID(), fields))
		c.metrics.Reports.WithLabelValues("status").Inc()
	}

	c.updateSnapshot()
}

func (c *Controller) malformed(line string, err error) {
	n := 1
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n = len(joined.Unwrap())
	}
	c.metrics.MalformedTokens.Add(float64(n))
	c.log.Warnw("malformed status line", "line", line, "error", err)
}

// HandleTick runs one scheduler tick and writes its frame to the link
func (c *Controller) HandleTick() {
	action := c.sched.Tick()

	if action.MissedPoll {
		c.stats.RecordMissedResponse()
		c.metrics.MissedResponses.Inc()
		c.log.Warnw("no response to status poll", "timeout_ticks", c.cfg.PollTimeout)
	}

	switch action.Kind {
	case ActionCommand:
		c.log.Debugw("sending command", "command", string(action.Frame[:len(action.Frame)-1]))
		if c.write(action.Frame) {
			c.stats.RecordCommand()
			c.metrics.CommandsSent.Inc()
		}
		c.metrics.QueueDepth.Set(float64(c.queue.Len()))
	case ActionPoll:
		c.log.Debugw("polling thermostat", "address", c.cfg.Address)
		if c.write(action.Frame) {
			c.stats.RecordPoll()
			c.metrics.PollsSent.Inc()
		} else {
			c.sched.ClearPollPending()
		}
	}

	if action.Kind != ActionNone || action.MissedPoll {
		c.updateSnapshot()
	}
}

func (c *Controller) write(frame []byte) bool {
	if _, err := c.link.Write(frame); err != nil {
		c.log.Errorw("link write failed", "error", err)
		return false
	}
	return true
}

func (c *Controller) publish(ctx context.Context, msg *bus.Message) {
	if c.cfg.TraceMessages {
		c.log.Debugw("bus message out",
			"kind", msg.Kind.String(),
			"schema", msg.Schema.String(),
			"body", msg.Body)
	}
	if err := c.pub.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.metrics.PublishErrors.Inc()
		c.log.Warnw("failed to send bus message", "schema", msg.Schema.String(), "error", err)
	}
}

// applyPollRate installs the stored poll rate. An invalid stored value is
// replaced by the rate currently in effect.
func (c *Controller) applyPollRate() {
	rate, err := c.svc.ConfigInt(ConfigPollRate)
	if err == nil {
		err = c.sched.SetPollRate(rate)
	}
	if err != nil {
		current := c.sched.PollRate()
		c.log.Warnw("invalid poll rate rejected", "error", err, "keeping", current)
		if serr := c.svc.SetConfigInt(ConfigPollRate, current); serr != nil {
			c.log.Errorw("failed to restore poll rate", "error", serr)
		}
	} else {
		c.log.Infow("poll rate set", "seconds", rate)
	}
	c.metrics.PollRate.Set(float64(c.sched.PollRate()))
	c.updateSnapshot()
}

func (c *Controller) updateSnapshot() {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	c.snap = Snapshot{
		Address:     c.cfg.Address,
		PollRate:    c.sched.PollRate(),
		PollPending: c.sched.PollPending(),
		QueueDepth:  c.queue.Len(),
		QueueSize:   c.queue.Capacity(),
		LastStatus:  c.lastStatus,
		LastLine:    c.lastLine,
		LastLineAt:  c.lastLineAt,
		Stats:       *c.stats,
	}
	c.snap.Stats.CalculateRates()
}

// Snapshot returns the state as of the last handled event
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.snap
}

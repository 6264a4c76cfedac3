// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/rcsbridge/internal/metrics"
	"github.com/Thermoquad/rcsbridge/internal/store"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
)

// fakeLink records every frame written to the thermostat
type fakeLink struct {
	mu     sync.Mutex
	writes []string
	err    error
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.writes = append(l.writes, string(p))
	return len(p), nil
}

func (l *fakeLink) Writes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes...)
}

// fakePublisher records every message sent to the bus
type fakePublisher struct {
	mu   sync.Mutex
	msgs []*bus.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Messages() []*bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*bus.Message(nil), p.msgs...)
}

type harness struct {
	ctrl *Controller
	link *fakeLink
	pub  *fakePublisher
	svc  *bus.Service
	cfgs *store.MemoryStore
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	cfgs := store.NewMemoryStore()
	svc, err := bus.NewService(bus.Identity{Vendor: "rcs", Device: "rc65", Instance: "test"}, "test", cfgs)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	link := &fakeLink{}
	pub := &fakePublisher{}
	ctrl, err := New(cfg, link, pub, svc, zap.NewNop().Sugar(), metrics.New())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	svc.SetEnabled(true)
	return &harness{ctrl: ctrl, link: link, pub: pub, svc: svc, cfgs: cfgs}
}

func (h *harness) command(schema bus.Schema, pairs ...string) *bus.Message {
	msg := commandMessage(schema, pairs...)
	msg.Target = h.svc.ID()
	return msg
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.ctrl.HandleTick()
	}
}

func TestController_BasicCommandReachesLink(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.ctrl.HandleMessage(ctx, h.command(bus.SchemaHVACBasic, "zone", "1", "command", "hvac-mode", "mode", "cool"))
	if got := h.ctrl.Snapshot().QueueDepth; got != 1 {
		t.Fatalf("QueueDepth = %d, want 1", got)
	}

	h.ticks(1)
	writes := h.link.Writes()
	if len(writes) != 1 || writes[0] != "A=1 M=C\r" {
		t.Errorf("writes = %q, want [A=1 M=C\\r]", writes)
	}
}

func TestController_IgnoresUnaddressedMessages(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	broadcast := h.command(bus.SchemaHVACBasic, "zone", "1", "command", "hvac-mode", "mode", "cool")
	broadcast.Target = "*"
	other := h.command(bus.SchemaHVACBasic, "zone", "1", "command", "hvac-mode", "mode", "cool")
	other.Target = "rcs-rc65.elsewhere"
	status := h.command(bus.SchemaHVACBasic, "zone", "1", "command", "hvac-mode", "mode", "cool")
	status.Kind = bus.KindStatus

	for _, msg := range []*bus.Message{broadcast, other, status} {
		h.ctrl.HandleMessage(ctx, msg)
	}
	if got := h.ctrl.Snapshot().QueueDepth; got != 0 {
		t.Errorf("QueueDepth = %d, want 0", got)
	}
}

func TestController_DisabledServiceIgnoresCommands(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.svc.SetEnabled(false)

	h.ctrl.HandleMessage(context.Background(), h.command(bus.SchemaHVACBasic, "zone", "1", "command", "hvac-mode", "mode", "cool"))
	if got := h.ctrl.Snapshot().QueueDepth; got != 0 {
		t.Errorf("QueueDepth = %d, want 0 while disabled", got)
	}
}

func TestController_UnknownModeNotQueued(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.ctrl.HandleMessage(context.Background(), h.command(bus.SchemaHVACBasic, "zone", "1", "command", "hvac-mode", "mode", "balmy"))
	if got := h.ctrl.Snapshot().QueueDepth; got != 0 {
		t.Errorf("QueueDepth = %d, want 0", got)
	}
}

func TestController_QueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	h := newHarness(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.ctrl.HandleMessage(ctx, h.command(bus.SchemaHVACTransparent, "SP", "70"))
	}
	if got := h.ctrl.Snapshot().QueueDepth; got != 1 {
		t.Errorf("QueueDepth = %d, want 1", got)
	}
}

func TestController_PollResponseTriggers(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	// First poll: everything is new
	h.ticks(5)
	if w := h.link.Writes(); len(w) != 1 || w[0] != "A=1 R=1\r" {
		t.Fatalf("writes = %q, want one poll", w)
	}
	h.ctrl.HandleLine(ctx, "A=1 M=O FM=0")

	msgs := h.pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Kind != bus.KindTrigger || len(msgs[0].Body) != 2 {
		t.Errorf("first trigger = %v %v", msgs[0].Kind, msgs[0].Body)
	}

	// Unchanged status: no traffic
	h.ticks(5)
	h.ctrl.HandleLine(ctx, "A=1 M=O FM=0")
	if n := len(h.pub.Messages()); n != 1 {
		t.Fatalf("unchanged status published, total %d", n)
	}

	// Mode change: only the mode is reported
	h.ticks(5)
	h.ctrl.HandleLine(ctx, "A=1 M=H FM=0")
	msgs = h.pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	last := msgs[1]
	if len(last.Body) != 1 || last.Body[0].Name != "m" || last.Body[0].Value != "H" {
		t.Errorf("delta body = %v, want [m=H]", last.Body)
	}
	if got := h.ctrl.Snapshot().LastStatus; got != "A=1 M=H FM=0" {
		t.Errorf("LastStatus = %q", got)
	}
}

func TestController_UnchangedMalformedTokenNotReported(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.ticks(5)
	h.ctrl.HandleLine(ctx, "A=1 GARBAGE M=O FM=0")
	h.ticks(5)
	h.ctrl.HandleLine(ctx, "A=1 GARBAGE M=H FM=0")

	msgs := h.pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	last := msgs[1]
	if len(last.Body) != 1 || last.Body[0].Name != "m" || last.Body[0].Value != "H" {
		t.Errorf("delta body = %v, want [m=H]", last.Body)
	}
}

func TestController_SnapshotRates(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		h.ctrl.HandleLine(ctx, "A=1 T=70")
	}
	h.ctrl.HandleLine(ctx, "T=70 junk")

	snap := h.ctrl.Snapshot()
	if snap.Stats.TotalLines != 6 {
		t.Fatalf("TotalLines = %d, want 6", snap.Stats.TotalLines)
	}
	if snap.Stats.LineRate <= 0 || snap.Stats.ErrorRate <= 0 {
		t.Errorf("LineRate = %v, ErrorRate = %v, want both > 0", snap.Stats.LineRate, snap.Stats.ErrorRate)
	}
	if snap.QueueSize != DefaultQueueSize {
		t.Errorf("QueueSize = %d, want %d", snap.QueueSize, DefaultQueueSize)
	}
}

func TestController_CommandResponseFullReport(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.ctrl.HandleLine(ctx, "A=1 T=72 M=C BAD")

	msgs := h.pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Kind != bus.KindStatus || !msg.Schema.Is(bus.SchemaRCSStatus) {
		t.Errorf("message = %v %v, want status rcs.status", msg.Kind, msg.Schema)
	}
	if len(msg.Body) != 2 {
		t.Errorf("body = %v, want t and m", msg.Body)
	}
	if got := h.ctrl.Snapshot().LastStatus; got != "" {
		t.Errorf("command response changed LastStatus to %q", got)
	}
}

func TestController_PollRateReconfiguration(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	for _, bad := range []string{"0", "61", "fast"} {
		h.ctrl.HandleMessage(ctx, h.command(bus.SchemaConfigResponse, "prate", bad))
		if got := h.ctrl.Snapshot().PollRate; got != 5 {
			t.Errorf("PollRate = %d after prate=%s, want 5", got, bad)
		}
		if v, _ := h.svc.ConfigValue(ConfigPollRate); v != "5" {
			t.Errorf("stored prate = %q after prate=%s, want re-asserted 5", v, bad)
		}
	}

	h.ctrl.HandleMessage(ctx, h.command(bus.SchemaConfigResponse, "prate", "30"))
	if got := h.ctrl.Snapshot().PollRate; got != 30 {
		t.Fatalf("PollRate = %d, want 30", got)
	}
	stored, _ := h.cfgs.Load()
	if stored[ConfigPollRate] != "30" {
		t.Errorf("persisted prate = %q, want 30", stored[ConfigPollRate])
	}

	h.ticks(29)
	if n := len(h.link.Writes()); n != 0 {
		t.Fatalf("%d writes before tick 30", n)
	}
	h.ticks(1)
	if w := h.link.Writes(); len(w) != 1 || w[0] != "A=1 R=1\r" {
		t.Errorf("writes at tick 30 = %q", w)
	}
}

func TestController_StoredPollRateUsed(t *testing.T) {
	cfgs := store.NewMemoryStore()
	cfgs.Save(map[string]string{ConfigPollRate: "2"})
	svc, _ := bus.NewService(bus.Identity{Vendor: "rcs", Device: "rc65", Instance: "test"}, "test", cfgs)

	ctrl, err := New(DefaultConfig(), &fakeLink{}, &fakePublisher{}, svc, zap.NewNop().Sugar(), metrics.New())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := ctrl.Snapshot().PollRate; got != 2 {
		t.Errorf("PollRate = %d, want stored 2", got)
	}
}

func TestController_ConfigCurrentReply(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	req := h.command(bus.SchemaConfigCurrent, "command", "request")
	h.ctrl.HandleMessage(context.Background(), req)

	msgs := h.pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if v, _ := msgs[0].Value("prate"); v != "5" {
		t.Errorf("prate = %q, want 5", v)
	}
	if msgs[0].Target != req.Source {
		t.Errorf("reply target = %q, want %q", msgs[0].Target, req.Source)
	}
}

func TestController_PollTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollTimeout = 2
	h := newHarness(t, cfg)

	h.ticks(5)
	if !h.ctrl.Snapshot().PollPending {
		t.Fatal("poll not pending")
	}
	h.ticks(2)
	snap := h.ctrl.Snapshot()
	if snap.PollPending {
		t.Error("poll still pending after timeout")
	}
	if snap.Stats.MissedResponses != 1 {
		t.Errorf("MissedResponses = %d, want 1", snap.Stats.MissedResponses)
	}

	// A late reply is now a command response
	h.ctrl.HandleLine(context.Background(), "A=1 M=O")
	if msgs := h.pub.Messages(); len(msgs) != 1 || msgs[0].Kind != bus.KindStatus {
		t.Errorf("late reply published %v", msgs)
	}
}

func TestController_PollWriteFailureClearsPending(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.link.err = errors.New("port gone")

	h.ticks(5)
	if h.ctrl.Snapshot().PollPending {
		t.Error("poll pending after failed write")
	}
}

func TestController_Prime(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	flushed := false

	if err := h.ctrl.Prime(context.Background(), func() error { flushed = true; return nil }); err != nil {
		t.Fatalf("Prime() error: %v", err)
	}
	if w := h.link.Writes(); len(w) != 1 || w[0] != "\r" {
		t.Errorf("writes = %q, want [\\r]", w)
	}
	if !flushed {
		t.Error("flush not called")
	}
}

func TestController_Run(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	if !h.ctrl.Deliver(h.command(bus.SchemaHVACBasic, "zone", "1", "command", "fan-mode", "mode", "on")) {
		t.Fatal("Deliver() = false on a running loop")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w := h.link.Writes()
		if len(w) > 0 {
			if w[0] != "A=1 FM=1\r" {
				t.Errorf("first write = %q", w[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command never written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !h.ctrl.DeliverLine("A=1 FM=1", nil) {
		t.Fatal("DeliverLine() = false on a running loop")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error: %v", err)
	}
	if h.ctrl.Deliver(h.command(bus.SchemaHVACRequest)) {
		t.Error("Deliver() = true after the loop stopped")
	}
	if h.svc.Enabled() {
		t.Error("service still enabled after Run returned")
	}
}

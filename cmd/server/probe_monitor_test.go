package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"videobox/internal/api"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() { close(m.stopped) }

type scriptedProbe struct {
	mu      sync.Mutex
	results []error
	calls   chan struct{}
}

func (p *scriptedProbe) check(context.Context) error {
	p.mu.Lock()
	var err error
	if len(p.results) > 0 {
		err = p.results[0]
		p.results = p.results[1:]
	}
	p.mu.Unlock()
	p.calls <- struct{}{}
	return err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProbeMonitorLogsTransitions(t *testing.T) {
	ticker := newManualTicker()
	probe := &scriptedProbe{
		results: []error{errors.New("connection refused"), errors.New("connection refused"), nil},
		calls:   make(chan struct{}, 1),
	}
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	stop := startProbeMonitorWithTicker(context.Background(), logger, []api.HealthProbe{{Name: "redis", Check: probe.check}}, time.Second, func(time.Duration) probeTicker {
		return ticker
	})

	for i := 0; i < 3; i++ {
		ticker.c <- time.Now()
		select {
		case <-probe.calls:
		case <-time.After(time.Second):
			t.Fatalf("probe was not run on tick %d", i)
		}
	}
	stop()

	select {
	case <-ticker.stopped:
	default:
		t.Fatal("expected ticker to be stopped")
	}

	logs := out.String()
	if got := strings.Count(logs, "dependency unhealthy"); got != 1 {
		t.Fatalf("expected one unhealthy line, got %d in %q", got, logs)
	}
	if !strings.Contains(logs, "dependency recovered") {
		t.Fatalf("expected recovery line, got %q", logs)
	}
}

func TestProbeMonitorWithoutProbesIsNoop(t *testing.T) {
	called := false
	stop := startProbeMonitorWithTicker(context.Background(), nil, nil, time.Second, func(time.Duration) probeTicker {
		called = true
		return newManualTicker()
	})
	stop()
	if called {
		t.Fatal("expected no ticker when there is nothing to probe")
	}
}

func TestProbeMonitorStopsWithContext(t *testing.T) {
	ticker := newManualTicker()
	ctx, cancel := context.WithCancel(context.Background())
	stop := startProbeMonitorWithTicker(ctx, nil, []api.HealthProbe{{Name: "db", Check: func(context.Context) error { return nil }}}, time.Second, func(time.Duration) probeTicker {
		return ticker
	})
	cancel()

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("expected worker to exit when context is cancelled")
	}
	stop()
}

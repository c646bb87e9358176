package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"videobox/internal/api"
)

const probeTimeout = 3 * time.Second

type probeTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) probeTicker

// startProbeMonitor periodically runs the dependency probes and logs when a
// dependency starts or stops failing. The returned func stops the worker and
// waits for it to exit.
func startProbeMonitor(ctx context.Context, logger *slog.Logger, probes []api.HealthProbe, interval time.Duration) func() {
	return startProbeMonitorWithTicker(ctx, logger, probes, interval, func(d time.Duration) probeTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startProbeMonitorWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	probes []api.HealthProbe,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if len(probes) == 0 || interval <= 0 {
		return func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	failing := make(map[string]bool, len(probes))
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				runProbes(workerCtx, logger, probes, failing)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func runProbes(ctx context.Context, logger *slog.Logger, probes []api.HealthProbe, failing map[string]bool) {
	for _, probe := range probes {
		if probe.Check == nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe.Check(probeCtx)
		cancel()
		switch {
		case err != nil && !failing[probe.Name]:
			failing[probe.Name] = true
			logger.Error("dependency unhealthy", "component", probe.Name, "error", err)
		case err == nil && failing[probe.Name]:
			failing[probe.Name] = false
			logger.Info("dependency recovered", "component", probe.Name)
		}
	}
}

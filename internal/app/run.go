package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/event"
	"github.com/vk/taskancestry/internal/ingest"
)

// Run executes the mode selected by inv.
func (a *App) Run(ctx context.Context, inv *Invocation) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "mode", inv.Mode)

	switch inv.Mode {
	case ModeServe:
		return a.Serve(ctx)
	case ModeReplay, ModeEmit:
		f, err := os.Open(inv.TracePath)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer f.Close()
		if inv.Mode == ModeReplay {
			return a.Replay(ctx, f)
		}
		return a.Emit(ctx, inv.Target, f, inv.RequestSnapshot)
	default:
		return fmt.Errorf("unknown mode %q", inv.Mode)
	}
}

// Serve accepts events over socket.io. SIGINT and SIGTERM take the interrupt
// path: the graph is exported and the process exits with the signal number.
// Cancelling ctx stops the event source and takes the shutdown path.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	stop := a.trigger.Watch(os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestServer := ingest.NewServer(ctx, a.config.IngestPath, a.collector, a.trigger)
	mux := http.NewServeMux()
	mux.Handle(a.config.IngestPath, ingestServer.Handler())
	server := &http.Server{Addr: a.config.IngestAddress, Handler: mux}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return a.trigger.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("Ingest server starting", "address", server.Addr, "path", a.config.IngestPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ingest server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ingestServer.Close()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancelShutdown()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	received, rejected := ingestServer.Stats()
	a.logger.Info("Ingest server stopped.", "received", received, "rejected", rejected)

	if ctx.Err() == nil {
		// Stopped by the interrupt path, which already exported.
		return nil
	}
	return a.trigger.Shutdown(context.WithoutCancel(ctx))
}

// Replay feeds a recorded trace through the collector and then takes the
// shutdown path. Events are partitioned by thread across the configured
// workers so each thread's events keep their order. An event that refers to
// a region or task created earlier in the trace waits for that creation.
func (a *App) Replay(ctx context.Context, r io.Reader) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	events, err := event.ReadTrace(r)
	if err != nil {
		return err
	}
	a.logger.Info("Replaying trace.", "events", len(events), "workers", a.config.Workers)

	stop := a.trigger.Watch(os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchCtx, cancelWatch := context.WithCancel(ctx)
	watchDone := make(chan error, 1)
	go func() { watchDone <- a.trigger.Run(watchCtx) }()

	handled, err := a.dispatch(ctx, events)
	cancelWatch()
	<-watchDone
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	regions, tasks := a.registry.Len()
	a.logger.Info("Trace replayed.", "handled", handled, "ignored", len(events)-handled, "regions", regions, "tasks", tasks)
	return a.trigger.Shutdown(ctx)
}

func (a *App) dispatch(ctx context.Context, events []event.Event) (int, error) {
	plan := planReplay(events)
	workers := max(a.config.Workers, 1)
	partitions := make([][]int, workers)
	for i, ev := range events {
		w := int(ev.Thread) % workers
		partitions[w] = append(partitions[w], i)
	}

	var handled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, part := range partitions {
		if len(part) == 0 {
			continue
		}
		g.Go(func() error {
			for _, i := range part {
				if err := plan.wait(gctx, i); err != nil {
					return err
				}
				if a.collector.Dispatch(gctx, events[i]) {
					handled.Add(1)
				}
				plan.done(i)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(handled.Load()), err
}

// Emit streams a recorded trace to the ingest server at target.
func (a *App) Emit(ctx context.Context, target string, r io.Reader, requestSnapshot bool) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	events, err := event.ReadTrace(r)
	if err != nil {
		return err
	}
	emitter, err := ingest.Dial(ctx, target, ingest.EmitterOptions{})
	if err != nil {
		return err
	}
	defer emitter.Close()

	sent, err := emitter.EmitAll(ctx, events)
	a.logger.Info("Trace emitted.", "target", target, "sent", sent, "total", len(events))
	if err != nil {
		return fmt.Errorf("emit failed: %w", err)
	}
	if requestSnapshot {
		if err := emitter.RequestSnapshot(ctx); err != nil {
			return err
		}
		a.logger.Info("Snapshot requested.", "target", target)
	}
	return nil
}

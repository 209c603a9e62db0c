package ingest

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/zishang520/socket.io/v2/socket"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/event"
	"github.com/vk/taskancestry/internal/graph"
	"github.com/vk/taskancestry/internal/snapshot"
)

// Dispatcher applies one event to the tracker.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event) bool
}

// Snapshotter builds and exports a live snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, reason string) (*graph.Graph, error)
}

// Socket event names, one per event.Kind.
const (
	eventRegionBegin  = "region_begin"
	eventRegionEnd    = "region_end"
	eventImplicitTask = "implicit_task"
	eventTaskCreate   = "task_create"
	eventTaskComplete = "task_complete"
)

var errNoSnapshotter = errors.New("snapshots are not enabled")

// Server is a socket.io endpoint for runtime integrations.
type Server struct {
	ctx         context.Context
	io          *socket.Server
	opts        *socket.ServerOptions
	dispatcher  Dispatcher
	snapshotter Snapshotter

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewServer creates a server that dispatches into d. ctx supplies the logger
// used by every connection. snap may be nil, in which case snapshot requests
// are ignored.
func NewServer(ctx context.Context, path string, d Dispatcher, snap Snapshotter) *Server {
	opts := socket.DefaultServerOptions()
	if path != "" {
		opts.SetPath(path)
	}
	s := &Server{
		ctx:         ctx,
		io:          socket.NewServer(nil, opts),
		opts:        opts,
		dispatcher:  d,
		snapshotter: snap,
	}
	s.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.bind(client)
	})
	return s
}

// Handler returns the HTTP handler serving the socket.io endpoint.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(s.opts)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.io.Close(nil)
}

// Stats reports how many events were accepted and rejected.
func (s *Server) Stats() (received, rejected uint64) {
	return s.received.Load(), s.rejected.Load()
}

func (s *Server) bind(client *socket.Socket) {
	logger := ctxlog.FromContext(s.ctx).With("sid", string(client.Id()))
	logger.Info("Event source connected.")
	ctx := ctxlog.WithLogger(s.ctx, logger)

	client.On(eventRegionBegin, s.listener(ctx, eventRegionBegin))
	client.On(eventRegionEnd, s.listener(ctx, eventRegionEnd))
	client.On(eventImplicitTask, s.listener(ctx, eventImplicitTask))
	client.On(eventTaskCreate, s.listener(ctx, eventTaskCreate))
	client.On(eventTaskComplete, s.listener(ctx, eventTaskComplete))
	client.On(EventSnapshot, func(args ...any) {
		_, ack := splitAck(args)
		err := s.handleSnapshot(ctx)
		if ack != nil {
			ack([]any{err == nil}, nil)
		}
	})
	client.On("disconnect", func(reason ...any) {
		logger.Info("Event source disconnected.", "reason", reason)
	})
}

func (s *Server) listener(ctx context.Context, name string) func(...any) {
	return func(args ...any) {
		args, ack := splitAck(args)
		handled := s.handleEvent(ctx, name, args...)
		if ack != nil {
			ack([]any{handled}, nil)
		}
	}
}

// splitAck separates the acknowledgement callback a client attaches as the
// last argument of an event.
func splitAck(args []any) ([]any, socket.Ack) {
	if n := len(args); n > 0 {
		if ack, ok := args[n-1].(socket.Ack); ok {
			return args[:n-1], ack
		}
	}
	return args, nil
}

// handleEvent decodes and dispatches one socket event.
func (s *Server) handleEvent(ctx context.Context, name string, args ...any) bool {
	ev, err := decodePayload(name, args...)
	if err != nil {
		s.rejected.Add(1)
		ctxlog.FromContext(ctx).Warn("Malformed event dropped.", "event", name, "error", err)
		return false
	}
	s.received.Add(1)
	return s.dispatcher.Dispatch(ctx, ev)
}

func (s *Server) handleSnapshot(ctx context.Context) error {
	if s.snapshotter == nil {
		return errNoSnapshotter
	}
	if _, err := s.snapshotter.Snapshot(ctx, snapshot.ReasonRequest); err != nil {
		ctxlog.FromContext(ctx).Error("Requested snapshot failed.", "error", err)
		return err
	}
	return nil
}

package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/event"
)

const (
	// DefaultConnectTimeout bounds Dial when the caller's context has no deadline.
	DefaultConnectTimeout = 15 * time.Second
	// DefaultAckTimeout bounds the wait for the server to acknowledge one event.
	DefaultAckTimeout = 10 * time.Second
)

// EmitterOptions configures Dial.
type EmitterOptions struct {
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	AckTimeout         time.Duration
}

// Emitter streams events to a Server. Every event is acknowledged by the
// server before the next one is sent.
type Emitter struct {
	io         *socket.Socket
	ackTimeout time.Duration
}

// Dial connects to the socket.io endpoint at target, for example
// "http://localhost:4000/socket.io/", and waits for the handshake.
func Dial(ctx context.Context, target string, opts EmitterOptions) (*Emitter, error) {
	logger := ctxlog.FromContext(ctx).With("target", target)

	parsedURL, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if opts.Namespace == "" {
		opts.Namespace = "/"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}

	clientOpts := socket.DefaultOptions()
	clientOpts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		clientOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	clientOpts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, clientOpts)
	io := manager.Socket(opts.Namespace, clientOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to ingest server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, ok := errs[0].(error)
		if !ok {
			err = fmt.Errorf("connect error: %v", errs[0])
		}
		connectChan <- err
	})

	logger.Debug("Connecting to ingest server.")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Emitter{io: io, ackTimeout: opts.AckTimeout}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(opts.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", opts.ConnectTimeout)
	}
}

// Emit sends one event and waits until the server has handled it.
func (e *Emitter) Emit(ctx context.Context, ev event.Event) error {
	data, err := event.Encode(ev)
	if err != nil {
		return err
	}
	if _, err := e.emitWithAck(ctx, string(ev.Kind), string(data)); err != nil {
		return fmt.Errorf("%s: %w", ev.Kind, err)
	}
	return nil
}

// EmitAll sends events in order, stopping at the first failure or when ctx
// is done.
func (e *Emitter) EmitAll(ctx context.Context, events []event.Event) (int, error) {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := e.Emit(ctx, ev); err != nil {
			return i, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return len(events), nil
}

// RequestSnapshot asks the server for a live snapshot and waits for it to be
// exported.
func (e *Emitter) RequestSnapshot(ctx context.Context) error {
	reply, err := e.emitWithAck(ctx, EventSnapshot)
	if err != nil {
		return fmt.Errorf("snapshot request: %w", err)
	}
	if len(reply) > 0 {
		if ok, _ := reply[0].(bool); !ok {
			return errors.New("server could not export the requested snapshot")
		}
	}
	return nil
}

func (e *Emitter) emitWithAck(ctx context.Context, name string, args ...any) ([]any, error) {
	if !e.io.Connected() {
		return nil, fmt.Errorf("emitter %s is not connected", e.io.Id())
	}

	type reply struct {
		args []any
		err  error
	}
	done := make(chan reply, 1)
	e.io.Timeout(e.ackTimeout).EmitWithAck(name, args...)(func(args []any, err error) {
		done <- reply{args: args, err: err}
	})

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("not acknowledged: %w", r.err)
		}
		return r.args, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects from the server.
func (e *Emitter) Close() {
	e.io.Disconnect()
}

// Package transport implements the shared TCP ingress: accept a
// connection, then read length-prefixed frames in a loop, answer each
// frame with the literal "Ack" probe reply as soon as it is read, and
// funnel it into a single bounded mpsc channel. One consumer goroutine
// drains that channel and hands
// frames to the Handler one at a time, so a Handler that is not itself
// safe for concurrent calls (the filter's forwarder, in particular) never
// sees two frames in flight together, regardless of how many connections
// are open. Both the mempool ingress (filter) and the Obsido ingress
// (obsido) are instances of this same listener, differing only in bind
// address, queue depth, and Handler.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/ocx/flnode/internal/protocol"
)

// Handler processes one decoded frame. Handle is only ever called from the
// listener's single consumer goroutine — implementations do not need to be
// safe for concurrent use.
type Handler interface {
	Handle(ctx context.Context, raw []byte)
}

// DefaultQueueDepth is used when Listener.QueueDepth is left zero; it
// matches ParametersConfig.IngressQueueDepth's own default.
const DefaultQueueDepth = 1000

// Listener accepts connections on Addr, funnels decoded frames into one
// bounded channel, and dispatches them to Handler from a single goroutine.
type Listener struct {
	Addr       string
	Handler    Handler
	Logger     *slog.Logger
	QueueDepth int

	queue chan []byte
}

// New constructs a Listener using DefaultQueueDepth. Use NewWithQueueDepth
// to size the channel from configuration.
func New(addr string, handler Handler, logger *slog.Logger) *Listener {
	return NewWithQueueDepth(addr, handler, logger, DefaultQueueDepth)
}

// NewWithQueueDepth constructs a Listener whose ingress channel holds up
// to queueDepth frames before a submitting connection blocks.
func NewWithQueueDepth(addr string, handler Handler, logger *slog.Logger, queueDepth int) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Listener{Addr: addr, Handler: handler, Logger: logger, QueueDepth: queueDepth}
}

// Serve binds Addr, starts the single frame-consumer goroutine, and
// accepts connections until ctx is canceled or accept fails. Each
// connection is read in its own goroutine; all of them feed the same
// consumer.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.Addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	if l.QueueDepth <= 0 {
		l.QueueDepth = DefaultQueueDepth
	}
	l.queue = make(chan []byte, l.QueueDepth)
	go l.consume(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go l.handleConn(ctx, conn)
	}
}

// consume is the listener's single frame handler goroutine — the only
// caller of Handler.Handle.
func (l *Listener) consume(ctx context.Context) {
	for {
		select {
		case raw := <-l.queue:
			l.Handler.Handle(ctx, raw)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		raw, err := protocol.ReadFrame(conn)
		if err != nil {
			return
		}
		if err := protocol.WriteFrame(conn, protocol.AckPayload); err != nil {
			l.Logger.Warn("transport: ack write failed", "remote", conn.RemoteAddr(), "err", err)
			return
		}

		select {
		case l.queue <- raw:
		case <-ctx.Done():
			return
		}
	}
}

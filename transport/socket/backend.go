package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Backend is the PUB side of a pub/sub pair: it binds a listener and
// broadcasts every published frame to all currently connected Frontends.
// A slow or absent Frontend never blocks Publish — each connection has its
// own bounded outbound queue and frames are dropped once it fills (HWM).
type Backend struct {
	addr   string
	logger *slog.Logger

	ln net.Listener

	mu        sync.Mutex
	conns     map[*backendConn]struct{}
	closed    bool
	closeOnce sync.Once

	wg sync.WaitGroup

	// Set only for inproc:// backends, which have no listener.
	inprocName string
}

type backendConn struct {
	conn net.Conn
	out  chan []byte
}

// Bind opens a listener at addr and starts accepting Frontend connections.
// Accepting stops when ctx is cancelled or Close is called. An inproc://
// addr registers an in-process pub/sub hub instead of binding a socket.
func Bind(ctx context.Context, addr string, logger *slog.Logger) (*Backend, error) {
	scheme, rest := splitScheme(addr)
	if scheme == "inproc" {
		return bindInprocBackend(rest, logger)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	ln, err := net.Listen("tcp", rest)
	if err != nil {
		return nil, fmt.Errorf("socket: bind %s: %w", addr, err)
	}
	b := &Backend{
		addr:   ln.Addr().String(),
		logger: logger,
		ln:     ln,
		conns:  make(map[*backendConn]struct{}),
	}
	b.wg.Add(1)
	go b.acceptLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = b.Close()
	}()
	return b, nil
}

// Addr returns the bound address (useful when addr was "host:0").
func (b *Backend) Addr() string { return b.addr }

func (b *Backend) acceptLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			b.logger.Warn("socket: backend accept error", "addr", b.addr, "error", err.Error())
			return
		}
		bc := &backendConn{conn: conn, out: make(chan []byte, HWM)}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		b.conns[bc] = struct{}{}
		b.mu.Unlock()

		b.wg.Add(1)
		go b.writeLoop(bc)
	}
}

func (b *Backend) writeLoop(bc *backendConn) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.conns, bc)
		b.mu.Unlock()
		_ = bc.conn.Close()
	}()

	for frame := range bc.out {
		if err := writeFrame(bc.conn, frame); err != nil {
			b.logger.Debug("socket: backend write error — dropping subscriber",
				"addr", b.addr, "remote", bc.conn.RemoteAddr(), "error", err.Error())
			return
		}
	}
}

// Publish broadcasts frame to every connected Frontend. Connections whose
// outbound queue is already at HWM have this frame dropped for them rather
// than blocking the publisher — no CPU-based shedding is used anywhere in
// this transport.
func (b *Backend) Publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for bc := range b.conns {
		select {
		case bc.out <- frame:
		default:
			b.logger.Warn("socket: backend queue full — frame dropped", "addr", b.addr)
		}
	}
}

// Subscribers reports the number of currently connected Frontends.
func (b *Backend) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Close stops accepting new connections, lets each active connection write
// the frames already queued for it, then closes it; it returns once every
// connection's writer has finished.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		conns := make([]*backendConn, 0, len(b.conns))
		for bc := range b.conns {
			conns = append(conns, bc)
		}
		b.mu.Unlock()

		if b.ln != nil {
			err = b.ln.Close()
		}
		if b.inprocName != "" {
			inprocBackends.Delete(b.inprocName)
		}
		for _, bc := range conns {
			close(bc.out)
		}
		b.wg.Wait()
	})
	return err
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

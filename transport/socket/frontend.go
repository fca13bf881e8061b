package socket

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Frontend is the SUB side of a pub/sub pair: it connects to a Backend and
// delivers every received frame on a channel. Frontend retries the initial
// dial — the Backend is commonly started after its Frontends in a pipeline.
type Frontend struct {
	addr   string
	logger *slog.Logger

	out       chan []byte
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	// Set only for inproc:// frontends, in place of a real connection.
	inprocBackend *Backend
	inprocConn    *backendConn
}

// Connect dials addr, retrying until ctx is cancelled or the connection
// succeeds, then starts delivering frames on Receive(). An inproc:// addr
// subscribes to an in-process Backend instead of dialing a socket.
func Connect(ctx context.Context, addr string, logger *slog.Logger) (*Frontend, error) {
	scheme, rest := splitScheme(addr)
	if scheme == "inproc" {
		return connectInprocFrontend(ctx, rest, logger)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cctx, cancel := context.WithCancel(ctx)
	f := &Frontend{
		addr:   addr,
		logger: logger,
		out:    make(chan []byte, HWM),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	conn, err := dialWithRetry(cctx, rest)
	if err != nil {
		cancel()
		close(f.done)
		return nil, err
	}

	go f.readLoop(cctx, conn)
	return f, nil
}

func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryInterval):
		}
	}
}

func (f *Frontend) readLoop(ctx context.Context, conn net.Conn) {
	defer close(f.done)
	defer close(f.out)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		frame, err := readFrame(conn)
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				f.logger.Debug("socket: frontend read error", "addr", f.addr, "error", err.Error())
			}
			return
		}
		select {
		case f.out <- frame:
		default:
			f.logger.Warn("socket: frontend queue full — frame dropped", "addr", f.addr)
		}
	}
}

// Receive returns the channel frames are delivered on. It is closed when the
// connection ends or Close is called.
func (f *Frontend) Receive() <-chan []byte { return f.out }

// Close disconnects the Frontend.
func (f *Frontend) Close() error {
	f.closeOnce.Do(func() {
		if f.inprocBackend != nil {
			b := f.inprocBackend
			b.mu.Lock()
			// A closed Backend closes every subscriber channel itself.
			if _, ok := b.conns[f.inprocConn]; ok && !b.closed {
				delete(b.conns, f.inprocConn)
				close(f.inprocConn.out)
			}
			b.mu.Unlock()
			close(f.done)
			return
		}
		f.cancel()
		<-f.done
	})
	return nil
}

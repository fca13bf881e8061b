package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Dealer is a persistent duplex connection used on both ends when a worker
// pair is configured Bidirectional (spec.md §9's DEALER-both-ends rule): the
// same connection carries data frames one way and command frames the other.
type Dealer struct {
	addr   string
	conn   net.Conn
	logger *slog.Logger

	in  chan []byte
	out chan []byte

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// DealerBind listens at addr and accepts a single peer connection, returning
// once that peer has connected (or ctx is cancelled). An inproc:// addr
// rendezvouses with its DealerConnect peer in-process instead.
func DealerBind(ctx context.Context, addr string, logger *slog.Logger) (*Dealer, error) {
	scheme, rest := splitScheme(addr)
	if scheme == "inproc" {
		return bindInprocDealer(rest, logger), nil
	}

	ln, err := net.Listen("tcp", rest)
	if err != nil {
		return nil, fmt.Errorf("socket: dealer bind %s: %w", addr, err)
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		resCh <- acceptResult{conn, err}
	}()

	select {
	case res := <-resCh:
		_ = ln.Close()
		if res.err != nil {
			return nil, fmt.Errorf("socket: dealer accept %s: %w", addr, res.err)
		}
		return newDealer(ctx, addr, res.conn, logger), nil
	case <-ctx.Done():
		_ = ln.Close()
		return nil, ctx.Err()
	}
}

// DealerConnect dials addr, retrying until ctx is cancelled or the
// connection succeeds.
func DealerConnect(ctx context.Context, addr string, logger *slog.Logger) (*Dealer, error) {
	scheme, rest := splitScheme(addr)
	if scheme == "inproc" {
		return connectInprocDealer(rest, logger), nil
	}

	conn, err := dialWithRetry(ctx, rest)
	if err != nil {
		return nil, fmt.Errorf("socket: dealer connect %s: %w", addr, err)
	}
	return newDealer(ctx, addr, conn, logger), nil
}

func newDealer(ctx context.Context, addr string, conn net.Conn, logger *slog.Logger) *Dealer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cctx, cancel := context.WithCancel(ctx)
	d := &Dealer{
		addr:   addr,
		conn:   conn,
		logger: logger,
		in:     make(chan []byte, HWM),
		out:    make(chan []byte, HWM),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		<-cctx.Done()
		_ = conn.Close()
	}()
	go d.readLoop(cctx)
	go d.writeLoop()
	return d
}

func (d *Dealer) readLoop(ctx context.Context) {
	defer close(d.done)
	defer close(d.in)
	for {
		frame, err := readFrame(d.conn)
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				d.logger.Debug("socket: dealer read error", "addr", d.addr, "error", err.Error())
			}
			return
		}
		select {
		case d.in <- frame:
		default:
			d.logger.Warn("socket: dealer inbound queue full — frame dropped", "addr", d.addr)
		}
	}
}

func (d *Dealer) writeLoop() {
	for frame := range d.out {
		if err := writeFrame(d.conn, frame); err != nil {
			d.logger.Debug("socket: dealer write error", "addr", d.addr, "error", err.Error())
			return
		}
	}
}

// Send enqueues frame for delivery to the peer. Non-blocking: if the
// outbound queue is full the frame is dropped (I3).
func (d *Dealer) Send(frame []byte) {
	select {
	case d.out <- frame:
	default:
		d.logger.Warn("socket: dealer outbound queue full — frame dropped", "addr", d.addr)
	}
}

// Receive returns the channel frames from the peer are delivered on. For a
// tcp:// dealer it is closed when the connection ends; an inproc:// dealer's
// channel is never closed.
func (d *Dealer) Receive() <-chan []byte { return d.in }

// Close tears down the connection. Inproc dealers have no connection or
// background goroutines to tear down — the shared hub outlives either end
// so its peer can still drain what was already sent.
func (d *Dealer) Close() error {
	d.closeOnce.Do(func() {
		if d.conn == nil {
			return
		}
		d.cancel()
		<-d.done
	})
	return nil
}

package socket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// inproc implements the same Backend/Frontend/Dealer semantics as the TCP
// transport but over in-memory channels, keyed by name, addressed as
// "inproc://name". spec.md §6 allows "other transports ... if the
// implementation's transport does [support them]" — this one exists so
// pipeline tests can wire workers together without binding real ports.
var inprocBackends sync.Map // name -> *Backend

// bindInprocBackend registers name as a pub/sub hub. Only one Backend may
// own a given name at a time.
func bindInprocBackend(name string, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	b := &Backend{
		addr:       "inproc://" + name,
		logger:     logger,
		conns:      make(map[*backendConn]struct{}),
		inprocName: name,
	}
	if _, loaded := inprocBackends.LoadOrStore(name, b); loaded {
		return nil, fmt.Errorf("socket: inproc backend %q is already bound", name)
	}
	return b, nil
}

// connectInprocFrontend waits for name's Backend to exist, then subscribes
// to it, retrying every dialRetryInterval (mirroring dialWithRetry).
func connectInprocFrontend(ctx context.Context, name string, logger *slog.Logger) (*Frontend, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	for {
		if v, ok := inprocBackends.Load(name); ok {
			b := v.(*Backend)
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				return nil, fmt.Errorf("socket: inproc backend %q is closed", name)
			}
			bc := &backendConn{out: make(chan []byte, HWM)}
			b.conns[bc] = struct{}{}
			b.mu.Unlock()

			return &Frontend{
				addr:          "inproc://" + name,
				logger:        logger,
				out:           bc.out,
				done:          make(chan struct{}),
				inprocBackend: b,
				inprocConn:    bc,
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryInterval):
		}
	}
}

// inprocDealerHub rendezvouses the two ends of a bidirectional inproc
// connection under a shared name.
type inprocDealerHub struct {
	bindToConn chan []byte
	connToBind chan []byte
}

var inprocDealers sync.Map // name -> *inprocDealerHub

func loadOrCreateInprocDealerHub(name string) *inprocDealerHub {
	h := &inprocDealerHub{
		bindToConn: make(chan []byte, HWM),
		connToBind: make(chan []byte, HWM),
	}
	actual, _ := inprocDealers.LoadOrStore(name, h)
	return actual.(*inprocDealerHub)
}

func bindInprocDealer(name string, logger *slog.Logger) *Dealer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	h := loadOrCreateInprocDealerHub(name)
	return &Dealer{addr: "inproc://" + name, logger: logger, in: h.connToBind, out: h.bindToConn}
}

func connectInprocDealer(name string, logger *slog.Logger) *Dealer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	h := loadOrCreateInprocDealerHub(name)
	return &Dealer{addr: "inproc://" + name, logger: logger, in: h.bindToConn, out: h.connToBind}
}

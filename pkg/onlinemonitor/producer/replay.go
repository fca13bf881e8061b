package producer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ReplaySource reads newline-delimited JSON records from an io.Reader and
// replays them one per Next call, looping back to the start on EOF. It is
// the read-side counterpart of transport/file's WriterTransport — same
// mutex-guarded single-underlying-stream shape, opposite data direction —
// recovering the file-replay producer mode the distilled spec only
// summarizes as "replays a file" (see
// original_source/online_monitor/utils/producer_sim.py).
type ReplaySource struct {
	mu     sync.Mutex
	reopen func() (io.ReadCloser, error)
	r      *bufio.Scanner
	closer io.Closer
	logger *slog.Logger
}

var _ DataSource = (*ReplaySource)(nil)

// NewReplaySource constructs a ReplaySource. reopen must return a fresh
// reader positioned at the start of the file each time it is called (used
// both for the initial open and to loop after EOF).
func NewReplaySource(reopen func() (io.ReadCloser, error), logger *slog.Logger) (*ReplaySource, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	rs := &ReplaySource{reopen: reopen, logger: logger}
	if err := rs.openFresh(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *ReplaySource) openFresh() error {
	rc, err := rs.reopen()
	if err != nil {
		return fmt.Errorf("producer: replay: open: %w", err)
	}
	rs.closer = rc
	rs.r = bufio.NewScanner(rc)
	rs.r.Buffer(make([]byte, 0, 64*1024), 16<<20)
	return nil
}

// Next returns the next decoded JSON record, reopening and looping from the
// start of the stream when EOF is reached. It implements DataSource.
func (rs *ReplaySource) Next(_ context.Context) (any, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for {
		if rs.r.Scan() {
			line := rs.r.Bytes()
			if len(line) == 0 {
				continue
			}
			var v any
			if err := json.Unmarshal(line, &v); err != nil {
				rs.logger.Warn("producer: replay: skipping malformed record", "error", err.Error())
				continue
			}
			return v, nil
		}
		if err := rs.r.Err(); err != nil {
			return nil, fmt.Errorf("producer: replay: scan: %w", err)
		}
		rs.logger.Debug("producer: replay: reached end of file — looping")
		_ = rs.closer.Close()
		if err := rs.openFresh(); err != nil {
			return nil, err
		}
	}
}

// Close releases the underlying reader.
func (rs *ReplaySource) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closer != nil {
		return rs.closer.Close()
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

package producer_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/producer"
)

// readCloserFrom wraps a strings.Reader so every reopen call gets an
// independent cursor over the same backing text.
func readCloserFrom(text string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(text)), nil
	}
}

func TestReplaySource_SequentialRecords(t *testing.T) {
	rs, err := producer.NewReplaySource(readCloserFrom("{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n"), nil)
	if err != nil {
		t.Fatalf("NewReplaySource() error = %v", err)
	}
	defer rs.Close()

	for want := 1.0; want <= 3; want++ {
		v, err := rs.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("Next() = %T, want map[string]any", v)
		}
		if m["n"] != want {
			t.Errorf("Next() n = %v, want %v", m["n"], want)
		}
	}
}

func TestReplaySource_LoopsOnEOF(t *testing.T) {
	rs, err := producer.NewReplaySource(readCloserFrom("{\"n\":1}\n"), nil)
	if err != nil {
		t.Fatalf("NewReplaySource() error = %v", err)
	}
	defer rs.Close()

	for i := 0; i < 5; i++ {
		v, err := rs.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() iteration %d error = %v", i, err)
		}
		m := v.(map[string]any)
		if m["n"] != 1.0 {
			t.Errorf("iteration %d: n = %v, want 1", i, m["n"])
		}
	}
}

func TestReplaySource_SkipsMalformedLines(t *testing.T) {
	rs, err := producer.NewReplaySource(readCloserFrom("not json\n{\"n\":9}\n"), nil)
	if err != nil {
		t.Fatalf("NewReplaySource() error = %v", err)
	}
	defer rs.Close()

	v, err := rs.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if v.(map[string]any)["n"] != 9.0 {
		t.Errorf("Next() = %v, want n=9", v)
	}
}

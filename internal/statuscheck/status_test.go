package statuscheck

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func TestSummaryAllHealthy(t *testing.T) {
    c := New(Options{Redis: pingFunc(ok), Results: pingFunc(ok), Raster: func() error { return nil }})
    s := c.Summary(context.Background())
    if !s.Redis.OK || !s.Results.OK || !s.MuPDF.OK || !s.Ready() {
        t.Fatalf("summary = %+v", s)
    }
}

func TestSummaryWithoutRedis(t *testing.T) {
    c := New(Options{Results: pingFunc(ok)})
    s := c.Summary(context.Background())
    if !s.Redis.OK || !s.Ready() {
        t.Errorf("memory status store should count as ready: %+v", s)
    }
    if s.MuPDF.OK {
        t.Errorf("missing renderer reported ok")
    }
}

func TestSummaryFailures(t *testing.T) {
    slow := pingFunc(func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() })
    c := New(Options{
        Redis:   slow,
        Results: pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 300)) }),
        Raster:  func() error { return errors.New("no mupdf") },
        Timeout: 20 * time.Millisecond,
    })
    s := c.Summary(context.Background())
    if s.Ready() {
        t.Fatal("expected not ready")
    }
    if s.Redis.Message != "timeout" {
        t.Errorf("redis message = %q", s.Redis.Message)
    }
    if len(s.Results.Message) != 120 {
        t.Errorf("results message not trimmed: %d chars", len(s.Results.Message))
    }
    if s.MuPDF.OK || s.MuPDF.Message != "no mupdf" {
        t.Errorf("mupdf = %+v", s.MuPDF)
    }
}

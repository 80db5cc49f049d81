package statuscheck

import (
    "context"
    "errors"
    "time"
)

// Pinger is anything that can report whether a backing service answers.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for the services a merge depends on.
type Checker struct {
    redis   Pinger
    results Pinger
    raster  func() error
    timeout time.Duration
}

// Options configures the Checker. A nil Redis means job status lives in memory.
type Options struct {
    Redis   Pinger
    Results Pinger
    Raster  func() error
    Timeout time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis   Status `json:"redis"`
    Results Status `json:"results"`
    MuPDF   Status `json:"mupdf"`
}

// Ready reports whether merges can be accepted. Thumbnails and flattening
// need MuPDF, plain merges do not.
func (s Summary) Ready() bool { return s.Redis.OK && s.Results.OK }

func New(opts Options) *Checker {
    if opts.Timeout <= 0 { opts.Timeout = 2 * time.Second }
    return &Checker{redis: opts.Redis, results: opts.Results, raster: opts.Raster, timeout: opts.Timeout}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:   c.checkRedis(ctx),
        Results: c.checkResults(ctx),
        MuPDF:   c.checkMuPDF(),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: true, Message: "Not configured, using memory"}
    }
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkResults(ctx context.Context) Status {
    if c.results == nil {
        return Status{OK: false, Message: "Result store not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    if err := c.results.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkMuPDF() Status {
    if c.raster == nil {
        return Status{OK: false, Message: "Renderer not configured"}
    }
    if err := c.raster(); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}

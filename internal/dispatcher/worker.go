package dispatcher

import (
    "context"
    "fmt"
    "runtime/debug"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/pagemerge/internal/limiter"
    "github.com/local/pagemerge/internal/logger"
    "github.com/local/pagemerge/internal/merge"
    "github.com/local/pagemerge/internal/metrics"
    "github.com/local/pagemerge/internal/pages"
    "github.com/local/pagemerge/internal/storage"
    "github.com/local/pagemerge/internal/store"
)

// Merger is the part of merge.Pipeline the worker needs.
type Merger interface {
    Merge(ctx context.Context, entries []pages.PageEntry, opts merge.Options, progress merge.ProgressFunc) (*merge.Result, error)
}

type Config struct {
    Concurrency int
    QueueSize   int
    JobTimeout  time.Duration
    Oversample  float64
}

// Job is one queued merge of a session snapshot.
type Job struct {
    ID        string
    SessionID string
    Entries   []pages.PageEntry
    Options   merge.Options
    Enqueued  time.Time

    ctx     context.Context
    release func()
}

type Worker struct {
    cfg     Config
    merger  Merger
    status  store.StatusStore
    results storage.ResultStore
    limit   *limiter.Keyed

    queue   chan *Job
    stop    chan struct{}
    wg      sync.WaitGroup

    mu      sync.Mutex
    cancels map[string]context.CancelFunc
    stopped bool
}

func New(cfg Config, m Merger, status store.StatusStore, results storage.ResultStore) *Worker {
    if cfg.Concurrency <= 0 { cfg.Concurrency = 2 }
    if cfg.QueueSize < cfg.Concurrency { cfg.QueueSize = cfg.Concurrency }
    return &Worker{
        cfg:     cfg,
        merger:  m,
        status:  status,
        results: results,
        limit:   limiter.New(1),
        queue:   make(chan *Job, cfg.QueueSize),
        stop:    make(chan struct{}),
        cancels: map[string]context.CancelFunc{},
    }
}

func (w *Worker) Start() {
    for i := 0; i < w.cfg.Concurrency; i++ {
        w.wg.Add(1)
        go w.loop(i)
    }
}

// Stop stops accepting jobs and waits for running merges until ctx is done,
// then cancels whatever is left.
func (w *Worker) Stop(ctx context.Context) error {
    w.mu.Lock()
    if w.stopped {
        w.mu.Unlock()
        return nil
    }
    w.stopped = true
    close(w.stop)
    w.mu.Unlock()

    done := make(chan struct{})
    go func() { w.wg.Wait(); close(done) }()
    var err error
    select {
    case <-done:
    case <-ctx.Done():
        w.mu.Lock()
        for _, cancel := range w.cancels { cancel() }
        w.mu.Unlock()
        <-done
        err = ctx.Err()
    }
    w.drain()
    return err
}

// drain cancels jobs still queued once the workers are gone.
func (w *Worker) drain() {
    for {
        select {
        case job := <-w.queue:
            w.finish(job)
            end := time.Now()
            w.setStatus(job.ID, store.Status{
                Status:   store.StatusCancelled,
                Message:  FailureMessage(context.Canceled),
                End:      &end,
                Metadata: map[string]interface{}{"session_id": job.SessionID, "pages": len(job.Entries)},
            })
            log.Info().Str("job_id", job.ID).Msg("queued merge cancelled on shutdown")
        default:
            metrics.SetQueueDepth(0)
            return
        }
    }
}

// Submit queues a merge of snap and returns the job id.
func (w *Worker) Submit(ctx context.Context, snap pages.Snapshot) (string, error) {
    if len(snap.Entries) == 0 {
        return "", &pages.InvalidDocumentError{Name: "merge", Reason: "no pages in session"}
    }
    release, ok := w.limit.Allow(snap.SessionID)
    if !ok { return "", ErrBusy }

    jobCtx, cancel := context.WithCancel(context.Background())
    job := &Job{
        ID:        uuid.NewString(),
        SessionID: snap.SessionID,
        Entries:   snap.Entries,
        Options: merge.Options{
            NormalizeCanvas: snap.Settings.NormalizeCanvas,
            Flatten:         snap.Settings.Flatten,
            Oversample:      w.cfg.Oversample,
        },
        Enqueued: time.Now(),
        ctx:      jobCtx,
        release:  release,
    }

    w.mu.Lock()
    if w.stopped {
        w.mu.Unlock()
        cancel()
        release()
        return "", ErrStopped
    }
    w.cancels[job.ID] = cancel
    w.mu.Unlock()

    if err := w.status.Set(ctx, job.ID, store.Status{
        Status:   store.StatusQueued,
        Message:  fmt.Sprintf("Queued %d pages", len(job.Entries)),
        Metadata: map[string]interface{}{"session_id": job.SessionID, "pages": len(job.Entries)},
    }); err != nil {
        w.finish(job)
        return "", fmt.Errorf("save job status: %w", err)
    }
    if err := w.status.SetSessionJob(ctx, job.SessionID, job.ID); err != nil {
        log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record session job")
    }

    // enqueue under mu so Stop never misses a job it has to drain
    w.mu.Lock()
    var qerr error
    if w.stopped {
        qerr = ErrStopped
    } else {
        select {
        case w.queue <- job:
        default:
            qerr = ErrQueueFull
        }
    }
    w.mu.Unlock()
    if qerr != nil {
        w.finish(job)
        st := store.Status{Status: store.StatusFailed, Message: qerr.Error()}
        if qerr == ErrStopped { st.Status = store.StatusCancelled }
        _ = w.status.Set(ctx, job.ID, st)
        return "", qerr
    }
    metrics.SetQueueDepth(len(w.queue))
    log.Info().Str("job_id", job.ID).Str("session_id", job.SessionID).Int("pages", len(job.Entries)).
        Bool("flatten", job.Options.Flatten).Bool("normalize", job.Options.NormalizeCanvas).Msg("merge job queued")
    return job.ID, nil
}

// Cancel stops a queued or running job. A running merge stops before its next page.
func (w *Worker) Cancel(ctx context.Context, jobID string) error {
    w.mu.Lock()
    cancel, ok := w.cancels[jobID]
    w.mu.Unlock()
    if ok {
        cancel()
        log.Info().Str("job_id", jobID).Msg("merge cancel requested")
        return nil
    }
    st, found, err := w.status.Get(ctx, jobID)
    if err != nil { return err }
    if !found { return ErrJobNotFound }
    if st.Terminal() { return ErrJobFinished }
    // queued on another instance or lost on restart
    return ErrJobNotFound
}

// Status returns the stored status of a job.
func (w *Worker) Status(ctx context.Context, jobID string) (store.Status, error) {
    st, found, err := w.status.Get(ctx, jobID)
    if err != nil { return store.Status{}, err }
    if !found { return store.Status{}, ErrJobNotFound }
    return st, nil
}

func (w *Worker) finish(job *Job) {
    w.mu.Lock()
    if cancel, ok := w.cancels[job.ID]; ok {
        cancel()
        delete(w.cancels, job.ID)
    }
    w.mu.Unlock()
    job.release()
}

func (w *Worker) loop(id int) {
    defer w.wg.Done()
    log.Info().Int("worker", id).Msg("merge worker started")
    for {
        select {
        case <-w.stop:
            log.Info().Int("worker", id).Msg("merge worker stopped")
            return
        case job := <-w.queue:
            metrics.SetQueueDepth(len(w.queue))
            w.process(job)
        }
    }
}

func (w *Worker) process(job *Job) {
    l := logger.ForJob(job.ID, job.SessionID)
    // the session slot is free before the final status becomes visible
    complete := func(st store.Status) {
        w.finish(job)
        w.setStatus(job.ID, st)
    }

    ctx := job.ctx
    if w.cfg.JobTimeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
        defer cancel()
    }

    start := time.Now()
    total := len(job.Entries)
    md := map[string]interface{}{"session_id": job.SessionID, "pages": total}
    w.setStatus(job.ID, store.Status{Status: store.StatusRunning, Message: "Merging", Start: &start, Metadata: md})
    l.Info().Dur("waited", start.Sub(job.Enqueued)).Msg("merge started")

    lastPct := 0
    progress := func(done, total int) {
        pct := done * 100 / total
        // keep 100 for the stored result
        if pct >= 100 { pct = 99 }
        if pct == lastPct { return }
        lastPct = pct
        w.setStatus(job.ID, store.Status{Status: store.StatusRunning, Progress: pct, Message: fmt.Sprintf("Merged %d of %d pages", done, total), Start: &start, Metadata: md})
    }

    res, err := w.runMerge(ctx, job, progress)
    if err == nil {
        err = w.results.Put(ctx, storage.ResultKey(job.ID), res.Data, storage.FileMetadata{
            OriginalName: "merged.pdf",
            ContentType:  "application/pdf",
            Metadata:     map[string]string{"session": job.SessionID, "job": job.ID},
        })
        if err != nil { err = fmt.Errorf("store result: %w", err) }
    }
    end := time.Now()
    result := outcome(err)
    metrics.ObserveMerge(result, end.Sub(start))

    if err != nil {
        st := store.Status{Status: store.StatusFailed, Progress: lastPct, Message: FailureMessage(err), Start: &start, End: &end, Metadata: md}
        if result == outcomeCancelled {
            st.Status = store.StatusCancelled
            l.Info().Msg("merge cancelled")
        } else {
            l.Error().Err(err).Msg("merge failed")
        }
        complete(st)
        return
    }

    metrics.AddPages(res.Copied, res.Scaled, res.Flattened)
    done := map[string]interface{}{
        "session_id": job.SessionID,
        "pages":      res.Pages,
        "bytes":      len(res.Data),
        "copied":     res.Copied,
        "scaled":     res.Scaled,
        "flattened":  res.Flattened,
        "result_key": storage.ResultKey(job.ID),
    }
    complete(store.Status{Status: store.StatusDone, Progress: 100, Message: "Merged document ready", Start: &start, End: &end, Metadata: done})
    l.Info().Int("pages", res.Pages).Int("bytes", len(res.Data)).Dur("took", end.Sub(start)).Msg("merge job done")
}

// runMerge runs the pipeline and turns a panic into a failed job.
func (w *Worker) runMerge(ctx context.Context, job *Job, progress merge.ProgressFunc) (res *merge.Result, err error) {
    defer func() {
        if r := recover(); r != nil {
            log.Error().Str("job_id", job.ID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("merge panicked")
            res, err = nil, &pages.EncodingError{Stage: "merge", Err: fmt.Errorf("panic: %v", r)}
        }
    }()
    return w.merger.Merge(ctx, job.Entries, job.Options, progress)
}

func (w *Worker) setStatus(jobID string, st store.Status) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := w.status.Set(ctx, jobID, st); err != nil {
        log.Warn().Err(err).Str("job_id", jobID).Str("status", st.Status).Msg("failed to update job status")
    }
}

package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/local/pagemerge/internal/merge"
	"github.com/local/pagemerge/internal/pages"
	"github.com/local/pagemerge/internal/storage"
	"github.com/local/pagemerge/internal/store"
)

// fakeMerger reports progress page by page and blocks on gate when set.
type fakeMerger struct {
	gate    chan struct{}
	started chan struct{}
	err     error

	mu   sync.Mutex
	opts []merge.Options
}

func (f *fakeMerger) Merge(ctx context.Context, entries []pages.PageEntry, opts merge.Options, progress merge.ProgressFunc) (*merge.Result, error) {
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	for i := range entries {
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(i+1, len(entries))
	}
	if f.err != nil {
		return nil, f.err
	}
	return &merge.Result{Data: []byte("%PDF-merged"), Pages: len(entries), Copied: len(entries)}, nil
}

func snapshot(sid string, n int) pages.Snapshot {
	src := pages.NewSourceFile("a.pdf", []byte("%PDF"))
	snap := pages.Snapshot{SessionID: sid, Settings: pages.DefaultSettings()}
	for i := 0; i < n; i++ {
		snap.Entries = append(snap.Entries, pages.PageEntry{ID: "p", Source: src, SourcePageIndex: i, Width: 612, Height: 792})
	}
	return snap
}

func newWorker(t *testing.T, m Merger, cfg Config) (*Worker, *storage.LocalStore) {
	t.Helper()
	results, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	w := New(cfg, m, store.NewMemoryStatus(time.Hour), results)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.Stop(ctx)
	})
	return w, results
}

func waitFor(t *testing.T, w *Worker, jobID string, terminal bool) store.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := w.Status(context.Background(), jobID)
		if err == nil && st.Terminal() == terminal {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach terminal=%v", jobID, terminal)
	return store.Status{}
}

func TestSubmitMergesAndStoresResult(t *testing.T) {
	m := &fakeMerger{}
	w, results := newWorker(t, m, Config{Concurrency: 2, Oversample: 3})
	w.Start()

	snap := snapshot("s1", 3)
	snap.Settings.Flatten = true
	jobID, err := w.Submit(context.Background(), snap)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st := waitFor(t, w, jobID, true)
	if st.Status != store.StatusDone || st.Progress != 100 {
		t.Fatalf("status = %+v", st)
	}
	if st.Metadata["result_key"] != storage.ResultKey(jobID) {
		t.Errorf("metadata = %v", st.Metadata)
	}
	data, meta, err := results.Get(context.Background(), storage.ResultKey(jobID))
	if err != nil || string(data) != "%PDF-merged" || meta.OriginalName != "merged.pdf" {
		t.Errorf("result = %q, %+v, %v", data, meta, err)
	}
	if o := m.opts[0]; !o.Flatten || !o.NormalizeCanvas || o.Oversample != 3 {
		t.Errorf("options = %+v", o)
	}
	if id, _ := w.status.SessionJob(context.Background(), "s1"); id != jobID {
		t.Errorf("session job = %q", id)
	}
}

func TestSubmitEmptySession(t *testing.T) {
	w, _ := newWorker(t, &fakeMerger{}, Config{})
	if _, err := w.Submit(context.Background(), snapshot("s1", 0)); !pages.IsInvalidDocument(err) {
		t.Errorf("err = %v, want invalid document", err)
	}
}

func TestOneMergePerSession(t *testing.T) {
	m := &fakeMerger{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	w, _ := newWorker(t, m, Config{Concurrency: 2})
	w.Start()

	first, err := w.Submit(context.Background(), snapshot("s1", 1))
	if err != nil {
		t.Fatal(err)
	}
	<-m.started
	if _, err := w.Submit(context.Background(), snapshot("s1", 1)); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit err = %v, want ErrBusy", err)
	}
	other, err := w.Submit(context.Background(), snapshot("s2", 1))
	if err != nil {
		t.Fatalf("other session refused: %v", err)
	}
	<-m.started
	close(m.gate)
	waitFor(t, w, first, true)
	waitFor(t, w, other, true)

	if _, err := w.Submit(context.Background(), snapshot("s1", 1)); err != nil {
		t.Errorf("submit after completion: %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	m := &fakeMerger{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	w, results := newWorker(t, m, Config{Concurrency: 1})
	w.Start()

	jobID, err := w.Submit(context.Background(), snapshot("s1", 5))
	if err != nil {
		t.Fatal(err)
	}
	<-m.started
	m.gate <- struct{}{}
	if err := w.Cancel(context.Background(), jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	st := waitFor(t, w, jobID, true)
	if st.Status != store.StatusCancelled {
		t.Errorf("status = %+v, want cancelled", st)
	}
	if _, _, err := results.Get(context.Background(), storage.ResultKey(jobID)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cancelled job stored a result: %v", err)
	}
	if err := w.Cancel(context.Background(), jobID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("second cancel err = %v, want ErrJobFinished", err)
	}
	if err := w.Cancel(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("unknown cancel err = %v", err)
	}
}

func TestFailedMergeMessage(t *testing.T) {
	m := &fakeMerger{err: &pages.EncodingError{PageID: "p7", Stage: "rasterize", Err: errors.New("boom")}}
	w, _ := newWorker(t, m, Config{Concurrency: 1})
	w.Start()

	jobID, err := w.Submit(context.Background(), snapshot("s1", 2))
	if err != nil {
		t.Fatal(err)
	}
	st := waitFor(t, w, jobID, true)
	if st.Status != store.StatusFailed || st.Message != "Could not process page p7 (rasterize failed)" {
		t.Errorf("status = %+v", st)
	}
}

type panicMerger struct{ calls int }

func (p *panicMerger) Merge(ctx context.Context, entries []pages.PageEntry, opts merge.Options, progress merge.ProgressFunc) (*merge.Result, error) {
	p.calls++
	if p.calls == 1 {
		var m map[string]int
		m["x"]++
	}
	return &merge.Result{Data: []byte("%PDF-merged"), Pages: len(entries)}, nil
}

func TestPanickingMergeFailsJob(t *testing.T) {
	w, _ := newWorker(t, &panicMerger{}, Config{Concurrency: 1})
	w.Start()

	jobID, err := w.Submit(context.Background(), snapshot("s1", 1))
	if err != nil {
		t.Fatal(err)
	}
	st := waitFor(t, w, jobID, true)
	if st.Status != store.StatusFailed || st.Message != "Could not build the merged document (merge failed)" {
		t.Errorf("status = %+v", st)
	}
	// the worker survives and the session slot is free again
	next, err := w.Submit(context.Background(), snapshot("s1", 1))
	if err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	if st := waitFor(t, w, next, true); st.Status != store.StatusDone {
		t.Errorf("next job = %+v, want done", st)
	}
}

func TestStopCancelsQueuedJobs(t *testing.T) {
	w, _ := newWorker(t, &fakeMerger{}, Config{Concurrency: 1, QueueSize: 4})
	// never started, so both jobs stay queued
	var ids []string
	for _, sid := range []string{"s1", "s2"} {
		id, err := w.Submit(context.Background(), snapshot(sid, 1))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, id := range ids {
		st, err := w.Status(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if st.Status != store.StatusCancelled || st.Message != "Merge cancelled" {
			t.Errorf("job %s = %+v, want cancelled", id, st)
		}
	}
	w.mu.Lock()
	left := len(w.cancels)
	w.mu.Unlock()
	if left != 0 {
		t.Errorf("%d jobs still tracked after stop", left)
	}
}

func TestJobTimeout(t *testing.T) {
	m := &fakeMerger{gate: make(chan struct{})}
	w, _ := newWorker(t, m, Config{Concurrency: 1, JobTimeout: 20 * time.Millisecond})
	w.Start()

	jobID, err := w.Submit(context.Background(), snapshot("s1", 1))
	if err != nil {
		t.Fatal(err)
	}
	st := waitFor(t, w, jobID, true)
	if st.Status != store.StatusFailed || st.Message != "Merge timed out" {
		t.Errorf("status = %+v", st)
	}
}

func TestQueueFull(t *testing.T) {
	w, _ := newWorker(t, &fakeMerger{}, Config{Concurrency: 1, QueueSize: 1})
	// not started: the queue only drains once workers run
	if _, err := w.Submit(context.Background(), snapshot("s1", 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Submit(context.Background(), snapshot("s2", 1)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if _, err := w.Submit(context.Background(), snapshot("s2", 1)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("session slot not released after queue full: %v", err)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	w, _ := newWorker(t, &fakeMerger{}, Config{})
	w.Start()
	w.Stop(context.Background())
	if _, err := w.Submit(context.Background(), snapshot("s1", 1)); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

func TestFailureMessage(t *testing.T) {
	cases := map[string]error{
		"Could not read a.pdf: cannot decode":                    &pages.InvalidDocumentError{Name: "a.pdf", Reason: "cannot decode"},
		"Nothing to merge: nothing to merge":                     &pages.InvalidDocumentError{Name: "merge", Reason: "nothing to merge"},
		"Could not build the merged document (serialize failed)": &pages.EncodingError{Stage: "serialize"},
		"Merge cancelled":                                        context.Canceled,
		"Merge failed: disk full":                                errors.New("disk full"),
	}
	for want, err := range cases {
		if got := FailureMessage(err); got != want {
			t.Errorf("FailureMessage(%v) = %q, want %q", err, got, want)
		}
	}
}

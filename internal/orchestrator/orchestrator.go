// Package orchestrator exposes editing sessions and merge jobs over HTTP.
package orchestrator

import (
    "context"
    "net/http"
    "time"

    "github.com/go-chi/chi/middleware"
    "github.com/go-chi/chi/v5"
    "github.com/go-chi/httprate"

    "github.com/local/pagemerge/internal/intake"
    "github.com/local/pagemerge/internal/metrics"
    "github.com/local/pagemerge/internal/pages"
    "github.com/local/pagemerge/internal/statuscheck"
    "github.com/local/pagemerge/internal/storage"
    "github.com/local/pagemerge/internal/store"
)

// Jobs is the part of the merge dispatcher the API drives.
type Jobs interface {
    Submit(ctx context.Context, snap pages.Snapshot) (string, error)
    Cancel(ctx context.Context, jobID string) error
    Status(ctx context.Context, jobID string) (store.Status, error)
}

// Loader turns uploads and references into source files.
type Loader interface {
    Load(name string, data []byte) (*intake.Loaded, error)
    FetchAndLoad(ctx context.Context, ref string) (*intake.Loaded, error)
}

// Thumbnailer renders one page of a source document as JPEG.
type Thumbnailer interface {
    Page(data []byte, index int, scale float64, rotation int) ([]byte, int, int, error)
}

type Readiness interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
    Sessions *Sessions
    Intake   Loader
    Jobs     Jobs
    Results  storage.ResultStore
    Thumbs   Thumbnailer
    Ready    Readiness

    MaxUploadBytes   int64
    UploadRatePerMin int
}

type Orchestrator struct {
    deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
    return &Orchestrator{deps: deps}
}

// Routes builds the HTTP handler.
func (o *Orchestrator) Routes() http.Handler {
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.RealIP)
    r.Use(requestLogger)
    r.Use(middleware.Recoverer)

    r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    r.Get("/ready", o.handleReady)
    r.Handle("/metrics", metrics.Handler())

    upload := func(next http.Handler) http.Handler { return next }
    if o.deps.UploadRatePerMin > 0 {
        upload = httprate.LimitByIP(o.deps.UploadRatePerMin, time.Minute)
    }

    r.Route("/sessions", func(r chi.Router) {
        r.Post("/", o.handleCreateSession)
        r.Route("/{sessionID}", func(r chi.Router) {
            r.Get("/", o.handleGetSession)
            r.Delete("/", o.handleDeleteSession)
            r.Put("/settings", o.handleSettings)

            r.With(upload).Post("/files", o.handleUpload)
            r.Post("/files/fetch", o.handleFetch)

            r.Post("/selection/toggle", o.handleToggle)
            r.Post("/selection/all", o.handleSelectAll)
            r.Post("/selection/clear", o.handleClearSelection)

            r.Post("/pages/delete", o.handleDeletePages)
            r.Post("/pages/rotate", o.handleRotatePages)
            r.Post("/pages/move", o.handleMove)
            r.Put("/pages/order", o.handleOrder)
            r.Get("/pages/{pageID}/thumbnail", o.handleThumbnail)

            r.Post("/merge", o.handleMerge)
        })
    })

    r.Route("/jobs/{jobID}", func(r chi.Router) {
        r.Get("/", o.handleJobStatus)
        r.Post("/cancel", o.handleCancelJob)
        r.Get("/download", o.handleDownload)
    })
    return r
}

func (o *Orchestrator) handleReady(w http.ResponseWriter, r *http.Request) {
    if o.deps.Ready == nil {
        writeJSON(w, http.StatusOK, map[string]any{"ready": true})
        return
    }
    sum := o.deps.Ready.Summary(r.Context())
    code := http.StatusOK
    if !sum.Ready() { code = http.StatusServiceUnavailable }
    writeJSON(w, code, map[string]any{"ready": sum.Ready(), "checks": sum})
}

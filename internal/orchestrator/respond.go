package orchestrator

import (
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/go-chi/chi/middleware"
    "github.com/rs/zerolog/log"

    "github.com/local/pagemerge/internal/dispatcher"
    "github.com/local/pagemerge/internal/intake"
    "github.com/local/pagemerge/internal/pages"
    "github.com/local/pagemerge/internal/storage"
)

const maxJSONBody = 1 << 20

type errorResp struct {
    Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
    defer r.Body.Close()
    dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
    dec.DisallowUnknownFields()
    if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
        return fmt.Errorf("invalid json: %w", err)
    }
    return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
    switch {
    case errors.Is(err, errSessionNotFound), errors.Is(err, dispatcher.ErrJobNotFound), errors.Is(err, storage.ErrNotFound):
        return http.StatusNotFound
    case pages.IsInvariantViolation(err):
        return http.StatusConflict
    case pages.IsInvalidDocument(err):
        return http.StatusUnprocessableEntity
    case errors.Is(err, dispatcher.ErrBusy), errors.Is(err, dispatcher.ErrJobFinished):
        return http.StatusConflict
    case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, dispatcher.ErrStopped):
        return http.StatusServiceUnavailable
    case errors.Is(err, intake.ErrRefNotAllowed):
        return http.StatusForbidden
    }
    return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
    code := statusFor(err)
    ev := log.Warn()
    if code >= 500 || pages.IsInvariantViolation(err) { ev = log.Error() }
    ev.Err(err).Str("path", r.URL.Path).Int("status", code).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
    writeJSON(w, code, errorResp{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
    writeJSON(w, http.StatusBadRequest, errorResp{Error: msg})
}

// requestLogger logs one line per request with zerolog.
func requestLogger(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        defer func() {
            status := ww.Status()
            if status == 0 { status = http.StatusOK }
            ev := log.Info()
            switch {
            case status >= 500:
                ev = log.Error()
            case r.URL.Path == "/health" || r.URL.Path == "/metrics":
                ev = log.Debug()
            }
            ev.Str("method", r.Method).
                Str("path", r.URL.Path).
                Int("status", status).
                Int("bytes", ww.BytesWritten()).
                Dur("took", time.Since(start)).
                Str("request_id", middleware.GetReqID(r.Context())).
                Msg("http request")
        }()
        next.ServeHTTP(ww, r)
    })
}

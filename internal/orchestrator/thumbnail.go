package orchestrator

import (
    "fmt"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"

    "github.com/local/pagemerge/internal/logger"
    "github.com/local/pagemerge/internal/metrics"
    "github.com/local/pagemerge/internal/pages"
)

// handleThumbnail renders a page preview with its current rotation. The scale
// comes from ?scale= or the session settings.
func (o *Orchestrator) handleThumbnail(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    pageID := chi.URLParam(r, "pageID")
    entry, found := sess.Entry(pageID)
    if !found {
        writeJSON(w, http.StatusNotFound, errorResp{Error: fmt.Sprintf("page %s not found", pageID)})
        return
    }

    scale := sess.Settings().ThumbnailScale
    if q := r.URL.Query().Get("scale"); q != "" {
        v, err := strconv.ParseFloat(q, 64)
        if err != nil { badRequest(w, "invalid scale"); return }
        scale = v
    }
    if err := pages.ValidateThumbnailScale(scale); err != nil { badRequest(w, err.Error()); return }
    if o.deps.Thumbs == nil {
        writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "thumbnails unavailable"})
        return
    }

    jpg, width, height, err := o.deps.Thumbs.Page(entry.Source.Data, entry.SourcePageIndex, scale, entry.Rotation)
    if err != nil {
        metrics.IncThumbnail("error")
        l := logger.ForSession(sess.ID)
        l.Error().Err(err).Str("page_id", pageID).Msg("thumbnail failed")
        writeJSON(w, http.StatusInternalServerError, errorResp{Error: "thumbnail failed"})
        return
    }
    metrics.IncThumbnail("success")
    w.Header().Set("Content-Type", "image/jpeg")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Content-Length", strconv.Itoa(len(jpg)))
    w.Header().Set("X-Thumbnail-Width", strconv.Itoa(width))
    w.Header().Set("X-Thumbnail-Height", strconv.Itoa(height))
    _, _ = w.Write(jpg)
}

package orchestrator

import (
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"
    "github.com/rs/zerolog/log"

    "github.com/local/pagemerge/internal/storage"
    "github.com/local/pagemerge/internal/store"
)

func (o *Orchestrator) handleMerge(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    jobID, err := o.deps.Jobs.Submit(r.Context(), sess.Snapshot())
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "status": store.StatusQueued})
}

func (o *Orchestrator) handleJobStatus(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "jobID")
    st, err := o.deps.Jobs.Status(r.Context(), id)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{
        "success":    st.Status == store.StatusDone,
        "job_id":     id,
        "status":     st.Status,
        "progress":   st.Progress,
        "message":    st.Message,
        "start_time": st.Start,
        "end_time":   st.End,
        "metadata":   st.Metadata,
    })
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "jobID")
    if err := o.deps.Jobs.Cancel(r.Context(), id); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job_id": id, "status": "cancelling"})
}

// handleDownload serves the merged PDF once. After a complete write the result
// and the session it came from are discarded.
func (o *Orchestrator) handleDownload(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "jobID")
    st, err := o.deps.Jobs.Status(r.Context(), id)
    if err != nil { writeError(w, r, err); return }
    switch st.Status {
    case store.StatusDone:
    case store.StatusQueued, store.StatusRunning:
        writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "status": st.Status, "progress": st.Progress, "message": "not ready"})
        return
    default:
        writeJSON(w, http.StatusConflict, map[string]any{"job_id": id, "status": st.Status, "error": st.Message})
        return
    }

    key := storage.ResultKey(id)
    data, _, err := o.deps.Results.Get(r.Context(), key)
    if err != nil { writeError(w, r, err); return }

    w.Header().Set("Content-Type", "application/pdf")
    w.Header().Set("Content-Disposition", "attachment; filename=merged.pdf")
    w.Header().Set("Content-Length", strconv.Itoa(len(data)))
    if _, err := w.Write(data); err != nil {
        log.Warn().Err(err).Str("job_id", id).Msg("download interrupted; keeping result")
        return
    }

    if err := o.deps.Results.Delete(r.Context(), key); err != nil {
        log.Warn().Err(err).Str("job_id", id).Msg("failed to delete downloaded result")
    }
    if sid, _ := st.Metadata["session_id"].(string); sid != "" {
        o.deps.Sessions.Delete(sid)
    }
    log.Info().Str("job_id", id).Int("bytes", len(data)).Msg("merged document downloaded")
}

package orchestrator

import (
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"

    "github.com/local/pagemerge/internal/logger"
    "github.com/local/pagemerge/internal/pages"
)

type pageView struct {
    ID         string  `json:"id"`
    SourceID   string  `json:"source_id"`
    SourceName string  `json:"source_name"`
    SourcePage int     `json:"source_page"`
    Rotation   int     `json:"rotation"`
    Width      float64 `json:"width"`
    Height     float64 `json:"height"`
    Selected   bool    `json:"selected"`
}

type sessionView struct {
    SessionID string         `json:"session_id"`
    Pages     []pageView     `json:"pages"`
    Selected  []string       `json:"selected"`
    Settings  pages.Settings `json:"settings"`
    UpdatedAt time.Time      `json:"updated_at"`
}

func viewOf(snap pages.Snapshot) sessionView {
    sel := pages.NewIDSet(snap.Selected...)
    v := sessionView{SessionID: snap.SessionID, Pages: make([]pageView, 0, len(snap.Entries)), Selected: snap.Selected, Settings: snap.Settings, UpdatedAt: snap.UpdatedAt}
    for _, e := range snap.Entries {
        v.Pages = append(v.Pages, pageView{
            ID:         e.ID,
            SourceID:   e.Source.ID,
            SourceName: e.Source.Name,
            SourcePage: e.SourcePageIndex + 1,
            Rotation:   e.Rotation,
            Width:      e.Width,
            Height:     e.Height,
            Selected:   sel.Has(e.ID),
        })
    }
    return v
}

// session resolves {sessionID} or answers 404.
func (o *Orchestrator) session(w http.ResponseWriter, r *http.Request) (*pages.Session, bool) {
    sess, ok := o.deps.Sessions.Get(chi.URLParam(r, "sessionID"))
    if !ok {
        writeError(w, r, errSessionNotFound)
        return nil, false
    }
    return sess, true
}

func (o *Orchestrator) handleCreateSession(w http.ResponseWriter, r *http.Request) {
    sess := o.deps.Sessions.Create()
    writeJSON(w, http.StatusCreated, viewOf(sess.Snapshot()))
}

func (o *Orchestrator) handleGetSession(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

func (o *Orchestrator) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
    if !o.deps.Sessions.Delete(chi.URLParam(r, "sessionID")) {
        writeError(w, r, errSessionNotFound)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (o *Orchestrator) handleSettings(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    st := sess.Settings()
    if err := decodeJSON(w, r, &st); err != nil { badRequest(w, err.Error()); return }
    if err := sess.UpdateSettings(st); err != nil { badRequest(w, err.Error()); return }
    l := logger.ForSession(sess.ID)
    l.Info().Bool("normalize_canvas", st.NormalizeCanvas).Bool("flatten", st.Flatten).Float64("thumbnail_scale", st.ThumbnailScale).Msg("settings updated")
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

type idReq struct {
    ID string `json:"id"`
}

func (o *Orchestrator) handleToggle(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    var req idReq
    if err := decodeJSON(w, r, &req); err != nil { badRequest(w, err.Error()); return }
    if req.ID == "" { badRequest(w, "missing id"); return }
    if err := sess.ToggleSelection(req.ID); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

func (o *Orchestrator) handleSelectAll(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    sess.SelectAll()
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

func (o *Orchestrator) handleClearSelection(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    sess.ClearSelection()
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

type deleteReq struct {
    IDs []string `json:"ids"`
}

// handleDeletePages removes the pages named in the body, or the selection
// when the body is empty.
func (o *Orchestrator) handleDeletePages(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    var req deleteReq
    if err := decodeJSON(w, r, &req); err != nil { badRequest(w, err.Error()); return }
    var removed []string
    if len(req.IDs) > 0 {
        removed = sess.DeletePages(pages.NewIDSet(req.IDs...))
    } else {
        removed = sess.DeleteSelected()
    }
    l := logger.ForSession(sess.ID)
    l.Info().Int("removed", len(removed)).Int("remaining", sess.Len()).Msg("pages deleted")
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

func (o *Orchestrator) handleRotatePages(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    n := sess.RotateSelected()
    l := logger.ForSession(sess.ID)
    l.Debug().Int("rotated", n).Msg("pages rotated")
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

type moveReq struct {
    Active string `json:"active"`
    Target string `json:"target"`
}

func (o *Orchestrator) handleMove(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    var req moveReq
    if err := decodeJSON(w, r, &req); err != nil { badRequest(w, err.Error()); return }
    if req.Active == "" || req.Target == "" { badRequest(w, "missing active or target"); return }
    if _, err := sess.Move(req.Active, req.Target); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

type orderReq struct {
    IDs []string `json:"ids"`
}

func (o *Orchestrator) handleOrder(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    var req orderReq
    if err := decodeJSON(w, r, &req); err != nil { badRequest(w, err.Error()); return }
    if err := sess.Reorder(req.IDs); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, viewOf(sess.Snapshot()))
}

package orchestrator

import (
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"

    "github.com/local/pagemerge/internal/intake"
    "github.com/local/pagemerge/internal/logger"
    "github.com/local/pagemerge/internal/metrics"
    "github.com/local/pagemerge/internal/pages"
)

// multipart parts above this size spill to temp files
const multipartMemory = 32 << 20

type addedFile struct {
    Name     string   `json:"name"`
    SourceID string   `json:"source_id"`
    PageIDs  []string `json:"page_ids"`
}

type rejectedFile struct {
    Name  string `json:"name"`
    Error string `json:"error"`
}

type intakeResp struct {
    Added    []addedFile    `json:"added"`
    Rejected []rejectedFile `json:"rejected"`
    Session  sessionView    `json:"session"`
}

// handleUpload accepts one or more `file` parts. Every file is taken or
// rejected on its own; a bad file never undoes the ones before it.
func (o *Orchestrator) handleUpload(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    if o.deps.MaxUploadBytes > 0 {
        r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadBytes)
    }
    if err := r.ParseMultipartForm(multipartMemory); err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) {
            writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{Error: fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit)})
            return
        }
        badRequest(w, "invalid multipart form"); return
    }
    defer r.MultipartForm.RemoveAll()

    files := r.MultipartForm.File["file"]
    if len(files) == 0 { badRequest(w, "missing file"); return }

    l := logger.ForSession(sess.ID)
    resp := intakeResp{Added: []addedFile{}, Rejected: []rejectedFile{}}
    for _, fh := range files {
        loaded, err := o.loadPart(fh)
        if err == nil {
            var ids []string
            ids, err = sess.AddFile(loaded.Source, loaded.Descriptors)
            if err == nil {
                metrics.IncIntake("upload", "accepted")
                resp.Added = append(resp.Added, addedFile{Name: loaded.Source.Name, SourceID: loaded.Source.ID, PageIDs: ids})
                continue
            }
        }
        metrics.IncIntake("upload", "rejected")
        l.Warn().Err(err).Str("file", fh.Filename).Msg("upload rejected")
        resp.Rejected = append(resp.Rejected, rejectedFile{Name: fh.Filename, Error: rejectReason(err)})
    }
    resp.Session = viewOf(sess.Snapshot())

    code := http.StatusOK
    if len(resp.Added) == 0 { code = http.StatusUnprocessableEntity }
    writeJSON(w, code, resp)
}

func (o *Orchestrator) loadPart(fh *multipart.FileHeader) (*intake.Loaded, error) {
    f, err := fh.Open()
    if err != nil { return nil, fmt.Errorf("open upload: %w", err) }
    defer f.Close()
    data, err := io.ReadAll(f)
    if err != nil { return nil, fmt.Errorf("read upload: %w", err) }
    return o.deps.Intake.Load(fh.Filename, data)
}

func rejectReason(err error) string {
    var inv *pages.InvalidDocumentError
    if errors.As(err, &inv) { return inv.Reason }
    return err.Error()
}

type fetchReq struct {
    FileURL string `json:"file_url"`
}

// handleFetch loads a document by reference (s3://, http(s):// or a local path).
func (o *Orchestrator) handleFetch(w http.ResponseWriter, r *http.Request) {
    sess, ok := o.session(w, r)
    if !ok { return }
    var req fetchReq
    if err := decodeJSON(w, r, &req); err != nil { badRequest(w, err.Error()); return }
    if req.FileURL == "" { badRequest(w, "missing file_url"); return }

    l := logger.ForSession(sess.ID)
    loaded, err := o.deps.Intake.FetchAndLoad(r.Context(), req.FileURL)
    if err != nil {
        metrics.IncIntake("fetch", "rejected")
        l.Warn().Err(err).Str("ref", req.FileURL).Msg("fetch rejected")
        code := statusFor(err)
        if code == http.StatusInternalServerError { code = http.StatusBadGateway }
        writeJSON(w, code, intakeResp{
            Added:    []addedFile{},
            Rejected: []rejectedFile{{Name: req.FileURL, Error: rejectReason(err)}},
            Session:  viewOf(sess.Snapshot()),
        })
        return
    }
    ids, err := sess.AddFile(loaded.Source, loaded.Descriptors)
    if err != nil { writeError(w, r, err); return }
    metrics.IncIntake("fetch", "accepted")
    writeJSON(w, http.StatusOK, intakeResp{
        Added:    []addedFile{{Name: loaded.Source.Name, SourceID: loaded.Source.ID, PageIDs: ids}},
        Rejected: []rejectedFile{},
        Session:  viewOf(sess.Snapshot()),
    })
}

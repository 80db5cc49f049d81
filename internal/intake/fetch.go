package intake

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "os"
    "path"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    awscfg "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrRefNotAllowed = errors.New("reference scheme not allowed")

// Fetcher downloads documents referenced by:
// - file://path or filesystem paths, only below FileRoot
// - http(s):// URLs, only to AllowedHosts when it is set
// - s3://bucket/key (AWS SDK v2 default credential chain)
type Fetcher struct {
    FileRoot string
    MaxBytes int64
    HTTP     *http.Client
    // AllowedHosts lists host names fetchable over http(s). A leading dot
    // matches subdomains. Empty allows any host.
    AllowedHosts []string

    s3Once sync.Once
    s3Cli  *s3.Client
    s3Err  error
}

func NewFetcher(fileRoot string, maxBytes int64, timeout time.Duration, allowedHosts ...string) *Fetcher {
    f := &Fetcher{FileRoot: fileRoot, MaxBytes: maxBytes, AllowedHosts: allowedHosts}
    f.HTTP = &http.Client{Timeout: timeout, CheckRedirect: f.checkRedirect}
    return f
}

func (f *Fetcher) hostAllowed(host string) bool {
    if len(f.AllowedHosts) == 0 { return true }
    host = strings.ToLower(host)
    for _, h := range f.AllowedHosts {
        h = strings.ToLower(strings.TrimSpace(h))
        if h == "" { continue }
        if host == h || (strings.HasPrefix(h, ".") && strings.HasSuffix(host, h)) {
            return true
        }
    }
    return false
}

// redirects must stay on allowed hosts too
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
    if !f.hostAllowed(req.URL.Hostname()) {
        return fmt.Errorf("%w: redirect to %s", ErrRefNotAllowed, req.URL.Host)
    }
    if len(via) >= 10 { return errors.New("stopped after 10 redirects") }
    return nil
}

// Fetch returns the bytes behind ref and a display name for it.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, []byte, error) {
    // Strip optional #page fragment if present
    if i := strings.Index(ref, "#"); i >= 0 {
        ref = ref[:i]
    }
    var data []byte
    var err error
    switch {
    case strings.HasPrefix(ref, "s3://"):
        data, err = f.fetchS3(ctx, ref)
    case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
        data, err = f.fetchHTTP(ctx, ref)
    case strings.HasPrefix(ref, "file://"):
        data, err = f.readLocal(strings.TrimPrefix(ref, "file://"))
    case strings.Contains(ref, "://"):
        return "", nil, fmt.Errorf("%w: %s", ErrRefNotAllowed, ref)
    default:
        data, err = f.readLocal(ref)
    }
    if err != nil {
        return "", nil, err
    }
    return refName(ref), data, nil
}

func refName(ref string) string {
    if i := strings.Index(ref, "?"); i >= 0 && !strings.HasPrefix(ref, "file://") {
        ref = ref[:i]
    }
    name := path.Base(ref)
    if name == "." || name == "/" || name == "" {
        return "download.pdf"
    }
    return name
}

func (f *Fetcher) limit(r io.Reader) ([]byte, error) {
    if f.MaxBytes <= 0 { return io.ReadAll(r) }
    data, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
    if err != nil { return nil, err }
    if int64(len(data)) > f.MaxBytes { return nil, fmt.Errorf("document exceeds %d bytes", f.MaxBytes) }
    return data, nil
}

func (f *Fetcher) readLocal(p string) ([]byte, error) {
    if f.FileRoot == "" {
        return nil, fmt.Errorf("%w: local files", ErrRefNotAllowed)
    }
    root, err := filepath.Abs(f.FileRoot)
    if err != nil { return nil, err }
    full := p
    if !filepath.IsAbs(full) { full = filepath.Join(root, full) }
    full = filepath.Clean(full)
    outside := fmt.Errorf("%w: %s is outside %s", ErrRefNotAllowed, p, root)
    if !within(root, full) { return nil, outside }
    // resolve links so one inside root cannot point out of it
    realRoot, err := filepath.EvalSymlinks(root)
    if err != nil { return nil, err }
    realFull, err := filepath.EvalSymlinks(full)
    if err != nil { return nil, err }
    if !within(realRoot, realFull) { return nil, outside }
    file, err := os.Open(realFull)
    if err != nil { return nil, err }
    defer file.Close()
    return f.limit(file)
}

func within(root, p string) bool {
    rel, err := filepath.Rel(root, p)
    return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil { return nil, err }
    if !f.hostAllowed(req.URL.Hostname()) {
        return nil, fmt.Errorf("%w: host %s", ErrRefNotAllowed, req.URL.Host)
    }
    cli := f.HTTP
    if cli == nil { cli = http.DefaultClient }
    resp, err := cli.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK { return nil, fmt.Errorf("http %d", resp.StatusCode) }
    data, err := f.limit(resp.Body)
    if err != nil { return nil, err }
    log.Info().Str("url", url).Int("bytes", len(data)).Msg("downloaded pdf")
    return data, nil
}

func (f *Fetcher) client() (*s3.Client, error) {
    f.s3Once.Do(func() {
        // Load AWS config (region from env or default chain). The client
        // outlives the request that first needs it.
        cfg, err := awscfg.LoadDefaultConfig(context.Background())
        if err != nil { f.s3Err = err; return }
        f.s3Cli = s3.NewFromConfig(cfg)
    })
    return f.s3Cli, f.s3Err
}

func (f *Fetcher) fetchS3(ctx context.Context, s3url string) ([]byte, error) {
    // s3://bucket/key
    p := strings.TrimPrefix(s3url, "s3://")
    slash := strings.Index(p, "/")
    if slash <= 0 || slash == len(p)-1 { return nil, fmt.Errorf("invalid s3 url: %s", s3url) }
    bucket := p[:slash]
    key := p[slash+1:]

    cli, err := f.client()
    if err != nil { return nil, err }
    out, err := cli.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
    if err != nil { return nil, err }
    defer out.Body.Close()
    data, err := f.limit(out.Body)
    if err != nil { return nil, err }
    log.Info().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("downloaded s3 pdf")
    return data, nil
}

// FetchAndLoad fetches ref and loads it like an upload.
func (in *Intake) FetchAndLoad(ctx context.Context, ref string) (*Loaded, error) {
    if in.fetcher == nil {
        return nil, fmt.Errorf("%w: fetching is disabled", ErrRefNotAllowed)
    }
    name, data, err := in.fetcher.Fetch(ctx, ref)
    if err != nil {
        return nil, fmt.Errorf("fetch %s: %w", ref, err)
    }
    return in.Load(name, data)
}

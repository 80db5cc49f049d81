package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const metaSuffix = ".meta.json"

// LocalStore writes results below a directory, one data file plus a JSON
// metadata sidecar per key.
type LocalStore struct {
	dir      string
	password string
}

func NewLocalStore(dir, password string) (*LocalStore, error) {
	if dir == "" { dir = filepath.Join("data", "results") }
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}
	return &LocalStore{dir: dir, password: password}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if rel, err := filepath.Rel(s.dir, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid result key %q", key)
	}
	return p, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, meta FileMetadata) error {
	p, err := s.path(key)
	if err != nil { return err }
	if meta.Created.IsZero() { meta.Created = time.Now() }
	body, err := seal(data, s.password, &meta)
	if err != nil { return err }
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil { return err }
	mb, err := json.Marshal(meta)
	if err != nil { return err }
	// data first so a sidecar never points at a missing file
	if err := writeAtomic(p, body); err != nil { return err }
	if err := writeAtomic(p+metaSuffix, mb); err != nil { return err }
	log.Info().Str("key", key).Int("bytes", len(body)).Bool("encrypted", meta.Encrypted).Msg("saved result locally")
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { return err }
	return os.Rename(tmp, path)
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, *FileMetadata, error) {
	p, err := s.path(key)
	if err != nil { return nil, nil, err }
	mb, err := os.ReadFile(p + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) { return nil, nil, ErrNotFound }
	if err != nil { return nil, nil, err }
	meta := &FileMetadata{}
	if err := json.Unmarshal(mb, meta); err != nil { return nil, nil, fmt.Errorf("read metadata: %w", err) }
	body, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) { return nil, nil, ErrNotFound }
	if err != nil { return nil, nil, err }
	data, err := unseal(body, s.password, meta)
	if err != nil { return nil, nil, err }
	return data, meta, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil { return err }
	for _, f := range []string{p + metaSuffix, p} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) { return err }
	}
	// drop the per-job directory once empty
	_ = os.Remove(filepath.Dir(p))
	return nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil { return err }
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Cleanup removes results older than maxAge and returns how many were removed.
func (s *LocalStore) Cleanup(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	_ = filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() { return nil }
		if !strings.HasSuffix(info.Name(), metaSuffix) { return nil }
		if now.Sub(info.ModTime()) < maxAge { return nil }
		rel, err := filepath.Rel(s.dir, strings.TrimSuffix(path, metaSuffix))
		if err != nil { return nil }
		if err := s.Delete(context.Background(), filepath.ToSlash(rel)); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("result cleanup failed")
			return nil
		}
		removed++
		return nil
	})
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("cleaned up expired results")
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *LocalStore) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 { return }
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Cleanup(maxAge)
		}
	}
}

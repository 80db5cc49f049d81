package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("result not found")

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName     string            `json:"original_name"`
	ContentType      string            `json:"content_type"`
	Size             int64             `json:"size"`
	Encrypted        bool              `json:"encrypted"`
	Created          time.Time         `json:"created"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	EncryptionFormat string            `json:"encryption_format,omitempty"`
}

// ResultStore keeps merged documents until they are downloaded or expire.
type ResultStore interface {
	Put(ctx context.Context, key string, data []byte, meta FileMetadata) error
	Get(ctx context.Context, key string) ([]byte, *FileMetadata, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ResultKey is the object key of a job's merged output.
func ResultKey(jobID string) string { return fmt.Sprintf("%s/merged.pdf", jobID) }

func seal(data []byte, password string, meta *FileMetadata) ([]byte, error) {
	meta.Size = int64(len(data))
	if password == "" {
		return data, nil
	}
	out, err := Encrypt(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt data: %w", err)
	}
	meta.Encrypted = true
	meta.EncryptionFormat = FormatGCM
	return out, nil
}

func unseal(data []byte, password string, meta *FileMetadata) ([]byte, error) {
	if !meta.Encrypted {
		return data, nil
	}
	if password == "" {
		return nil, errors.New("result is encrypted but no password is configured")
	}
	plain, format, err := Decrypt(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}
	meta.EncryptionFormat = format
	return plain, nil
}

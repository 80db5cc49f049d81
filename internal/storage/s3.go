package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Store keeps results in a bucket. Expiry is left to a bucket lifecycle rule.
type S3Store struct {
	client     *s3.Client
	bucketName string
	prefix     string
	password   string
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucketName, prefix, password string) (*S3Store, error) {
	if bucketName == "" {
		return nil, errors.New("s3 bucket not configured")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucketName: bucketName, prefix: prefix, password: password}, nil
}

func (s *S3Store) objectKey(key string) string { return s.prefix + key }

func (s *S3Store) Put(ctx context.Context, key string, data []byte, meta FileMetadata) error {
	if meta.Created.IsZero() { meta.Created = time.Now() }
	body, err := seal(data, s.password, &meta)
	if err != nil {
		return err
	}
	s3Metadata := map[string]string{
		"name":      meta.OriginalName,
		"size":      strconv.FormatInt(meta.Size, 10),
		"encrypted": strconv.FormatBool(meta.Encrypted),
		"created":   meta.Created.UTC().Format(time.RFC3339),
	}
	if meta.EncryptionFormat != "" {
		s3Metadata["encryption-format"] = meta.EncryptionFormat
	}
	for k, v := range meta.Metadata {
		s3Metadata[k] = v
	}
	contentType := meta.ContentType
	if meta.Encrypted {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", s.bucketName).Str("key", s.objectKey(key)).Bool("encrypted", meta.Encrypted).Msg("uploaded result to S3")
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	meta := metadataFromS3(result.Metadata)
	if result.ContentType != nil && !meta.Encrypted {
		meta.ContentType = *result.ContentType
	}
	data, err := unseal(body, s.password, meta)
	if err != nil {
		return nil, nil, err
	}
	return data, meta, nil
}

// metadataFromS3 reads user metadata; keys may come back in either case.
func metadataFromS3(m map[string]string) *FileMetadata {
	meta := &FileMetadata{ContentType: "application/pdf", Metadata: map[string]string{}}
	for k, v := range m {
		switch strings.ToLower(k) {
		case "name":
			meta.OriginalName = v
		case "size":
			meta.Size, _ = strconv.ParseInt(v, 10, 64)
		case "encrypted":
			meta.Encrypted, _ = strconv.ParseBool(v)
		case "encryption-format":
			meta.EncryptionFormat = v
		case "created":
			meta.Created, _ = time.Parse(time.RFC3339, v)
		default:
			meta.Metadata[strings.ToLower(k)] = v
		}
	}
	return meta
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

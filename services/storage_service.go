package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
)

// ScriptStore holds processing script sources outside the base directory.
// Workers pick up a saved version once it is mirrored into place.
type ScriptStore interface {
	SaveScript(ctx context.Context, key string, source string) error
	GetScript(ctx context.Context, key string) (string, error)
}

// LocalScriptStore implements ScriptStore using local filesystem
type LocalScriptStore struct {
	basePath string
}

func NewLocalScriptStore(basePath string) (*LocalScriptStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &LocalScriptStore{basePath: basePath}, nil
}

func (s *LocalScriptStore) SaveScript(ctx context.Context, key string, source string) error {
	fullPath := filepath.Join(s.basePath, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, []byte(source), 0644)
}

func (s *LocalScriptStore) GetScript(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, key))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// S3ScriptStore implements ScriptStore using AWS S3
type S3ScriptStore struct {
	client *s3.Client
	bucket string
}

func NewS3ScriptStore(bucket string) (*S3ScriptStore, error) {
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, err
	}

	// Instrument AWS SDK v2 with X-Ray for automatic S3 operation tracing
	awsv2.AWSV2Instrumentor(&cfg.APIOptions)

	return &S3ScriptStore{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *S3ScriptStore) SaveScript(ctx context.Context, key string, source string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(source),
		ContentType: aws.String("application/javascript"),
	})
	return err
}

func (s *S3ScriptStore) GetScript(ctx context.Context, key string) (string, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}


// NewScriptStore creates the store selected by storageType ("local" or "s3").
func NewScriptStore(storageType, pathOrBucket string) (ScriptStore, error) {
	switch storageType {
	case "s3":
		return NewS3ScriptStore(pathOrBucket)
	case "local":
		return NewLocalScriptStore(pathOrBucket)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

// MirrorScript copies the script stored under key to dest so the
// interpreter can resolve it from the search path.
func MirrorScript(ctx context.Context, store ScriptStore, key, dest string) error {
	source, err := store.GetScript(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch script %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, []byte(source), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

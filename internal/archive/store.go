package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store copies finished call logs to S3. The local file stays the source of
// truth; an upload failure never affects the run result.
type Store struct {
	bucket   string
	prefix   string
	s3Client S3API
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{bucket: bucket, prefix: prefix, s3Client: s3Client, logger: logger, now: time.Now}
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Key is <prefix>/YYYY/MM/DD/<runID>-<basename>.
func (s *Store) Key(runID, localPath string) string {
	t := s.now().UTC()
	name := fmt.Sprintf("%s-%s", runID, filepath.Base(localPath))
	return path.Join(s.prefix, fmt.Sprintf("%d/%02d/%02d", t.Year(), t.Month(), t.Day()), name)
}

// ArchiveLog uploads the log file and, when summary is non-nil, a JSON
// sidecar next to it. It returns the log object key.
func (s *Store) ArchiveLog(ctx context.Context, runID, localPath string, summary any) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("archive: read %s: %w", localPath, err)
	}

	key := s.Key(runID, localPath)
	if err := s.put(ctx, key, data, "text/csv"); err != nil {
		return "", err
	}
	s.logger.Info("archived call log to S3", "s3_key", key, "bytes", len(data), "run_id", runID)

	if summary != nil {
		body, err := json.Marshal(summary)
		if err != nil {
			return key, fmt.Errorf("archive: marshal summary: %w", err)
		}
		if err := s.put(ctx, key+".summary.json", body, "application/json"); err != nil {
			return key, err
		}
	}
	return key, nil
}

func (s *Store) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return nil
}

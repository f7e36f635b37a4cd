// Package storage persists report artifacts (the full ranked result listing)
// to S3. Report rows carry only the artifact URL; the database stays small
// regardless of result volume.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// ObjectPutter abstracts the S3 PutObject operation for testability.
// Production code uses the *s3.Client from aws-sdk-go-v2.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArtifactStore writes gzip-compressed report artifacts to one bucket.
type ArtifactStore struct {
	client ObjectPutter
	bucket string
	region string
	logger *slog.Logger
}

// NewArtifactStore creates an ArtifactStore for the given bucket.
func NewArtifactStore(client ObjectPutter, bucket, region string, logger *slog.Logger) *ArtifactStore {
	return &ArtifactStore{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger,
	}
}

// Enabled reports whether a bucket is configured. With no bucket the scan
// pipeline skips artifact upload and reports carry no download link.
func (s *ArtifactStore) Enabled() bool {
	return s.bucket != ""
}

// artifactKey is the object key for a report artifact. The ID is generated
// by the scan pipeline before the report row exists.
func artifactKey(artifactID string) string {
	return fmt.Sprintf("reports/%s.json.gz", artifactID)
}

// Upload compresses and stores the artifact payload, returning the object's
// URL. The payload is pre-serialized JSON.
func (s *ArtifactStore) Upload(ctx context.Context, artifactID string, payload []byte) (string, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(payload); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to compress report artifact",
			err,
		)
	}
	if err := gw.Close(); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to finalize report artifact",
			err,
		)
	}

	key := artifactKey(artifactID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamStorage,
			fmt.Sprintf("failed to upload report artifact %s", key),
			err,
		)
	}

	url := s.objectURL(key)
	s.logger.InfoContext(ctx, "report artifact uploaded",
		"artifact_id", artifactID,
		"key", key,
		"compressed_bytes", buf.Len(),
	)
	return url, nil
}

// objectURL builds the public virtual-hosted URL for an object.
func (s *ArtifactStore) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

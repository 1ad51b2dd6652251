package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ExportArchive copies lead CSV exports to S3.
type ExportArchive struct {
	s3     S3API
	bucket string
	now    func() time.Time
}

// NewExportArchive returns nil when no bucket is configured, which callers
// treat as archiving disabled.
func NewExportArchive(client S3API, bucket string) *ExportArchive {
	if bucket == "" {
		return nil
	}
	return &ExportArchive{s3: client, bucket: bucket, now: time.Now}
}

// ArchiveExport uploads data under exports/YYYY/MM/DD/<name> and returns the
// object key.
func (a *ExportArchive) ArchiveExport(ctx context.Context, name string, data []byte) (string, error) {
	key := fmt.Sprintf("exports/%s/%s", a.now().UTC().Format("2006/01/02"), name)

	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading export to S3: %w", err)
	}
	return key, nil
}

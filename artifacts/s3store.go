// Package artifacts streams action-produced binaries (screenshots, PDFs,
// video) to S3 and hands back a pointer (artifact.Ref) in place of the raw
// bytes, per spec §4.11.
package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"fleetcore/models/artifact"
)

// DefaultInlineThreshold is the size below which a screenshot may be
// returned inline as base64 in ActionResult.Data instead of going to S3.
const DefaultInlineThreshold = 256 * 1024 // 256 KiB

// Store streams artifacts to a single configured bucket.
type Store struct {
	uploader  *s3manager.Uploader
	bucket    string
	threshold int64
	now       func() time.Time
}

// Config configures a Store.
type Config struct {
	Bucket          string
	Region          string
	InlineThreshold int64 // bytes; 0 falls back to DefaultInlineThreshold
}

// New builds a Store from an AWS session.
func New(cfg Config) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, fmt.Errorf("artifacts: new aws session: %w", err)
	}
	threshold := cfg.InlineThreshold
	if threshold == 0 {
		threshold = DefaultInlineThreshold
	}
	return &Store{
		uploader:  s3manager.NewUploader(sess),
		bucket:    cfg.Bucket,
		threshold: threshold,
		now:       time.Now,
	}, nil
}

// ShouldInline reports whether a payload of this size may be returned
// inline instead of uploaded.
func (s *Store) ShouldInline(sizeBytes int) bool {
	return int64(sizeBytes) < s.threshold
}

// Put streams data to S3 under a key namespaced by session and kind, and
// returns a durable pointer to it.
func (s *Store) Put(ctx context.Context, sessionID string, kind artifact.Kind, contentType string, data []byte) (artifact.Ref, error) {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	key := fmt.Sprintf("%s/%s/%s/%s", kind, sessionID, s.now().Format("2006-01-02"), uuid.NewString())

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]*string{
			"session-id": aws.String(sessionID),
			"checksum":   aws.String(checksum),
		},
	})
	if err != nil {
		return artifact.Ref{}, fmt.Errorf("artifacts: upload %s: %w", key, err)
	}

	return artifact.Ref{
		ID:          uuid.NewString(),
		Kind:        kind,
		SessionID:   sessionID,
		Bucket:      s.bucket,
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Checksum:    checksum,
		CreatedAt:   s.now(),
	}, nil
}

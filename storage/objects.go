package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ad-capture-pipeline/models"
)

// objectPrefix is the key prefix for uploaded capture artifacts.
const objectPrefix = "reports"

// ObjectStore uploads capture artifacts to an S3-compatible bucket and
// hands back publicly addressable URLs.
type ObjectStore struct {
	mc            *minio.Client
	bucket        string
	endpoint      string
	useTLS        bool
	publicBaseURL string
}

// NewObjectStore creates an object store client. publicBaseURL overrides
// the URL prefix returned for uploaded objects; empty derives one from the
// endpoint and bucket.
func NewObjectStore(endpoint, accessKey, secretKey string, useTLS bool, bucket, publicBaseURL string) (*ObjectStore, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &ObjectStore{
		mc:            mc,
		bucket:        bucket,
		endpoint:      endpoint,
		useTLS:        useTLS,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.mc.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := o.mc.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores one captured frame under a fresh reports/<uuid>.jpg key and
// returns its public URL.
func (o *ObjectStore) Upload(ctx context.Context, frame *models.CapturedFrame) (string, error) {
	if frame == nil || len(frame.Data) == 0 {
		return "", fmt.Errorf("empty frame")
	}

	contentType := frame.MimeType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := fmt.Sprintf("%s/%s.jpg", objectPrefix, uuid.New().String())

	_, err := o.mc.PutObject(ctx, o.bucket, key, bytes.NewReader(frame.Data), int64(len(frame.Data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	url := o.publicURL(key)
	log.WithFields(log.Fields{
		"key":  key,
		"size": len(frame.Data),
	}).Info("Uploaded capture artifact")
	return url, nil
}

func (o *ObjectStore) publicURL(key string) string {
	if o.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", o.publicBaseURL, key)
	}
	scheme := "http"
	if o.useTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, o.endpoint, o.bucket, key)
}

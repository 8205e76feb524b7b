package s3

import (
	"context"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/rx3lixir/tunebox/pkg/logger"
)

const (
	mirrorTimeout = 10 * time.Second
	presignTTL    = 24 * time.Hour
)

// ThumbStore mirrors provider thumbnails into a bucket so queue entries
// keep rendering after the provider's hotlink limits kick in. Everything is
// best-effort: any failure falls back to the source URL. A nil ThumbStore
// is valid and always falls back.
type ThumbStore struct {
	client     *minio.Client
	bucketName string
	httpClient *http.Client
	log        *logger.Logger
}

func NewThumbStore(client *minio.Client, bucketName string, log *logger.Logger) *ThumbStore {
	if client == nil {
		return nil
	}
	return &ThumbStore{
		client:     client,
		bucketName: bucketName,
		httpClient: &http.Client{Timeout: mirrorTimeout},
		log:        log,
	}
}

// MirrorURL returns a presigned URL for the mirrored copy of srcURL,
// copying it into the bucket first if it is not there yet
func (t *ThumbStore) MirrorURL(ctx context.Context, name, srcURL string) string {
	if t == nil || srcURL == "" {
		return srcURL
	}

	object := "thumbs/" + name + ".jpg"

	if _, err := t.client.StatObject(ctx, t.bucketName, object, minio.StatObjectOptions{}); err != nil {
		if !t.copyObject(ctx, object, srcURL) {
			return srcURL
		}
	}

	presigned, err := t.client.PresignedGetObject(ctx, t.bucketName, object, presignTTL, nil)
	if err != nil {
		t.log.Warn("failed to presign thumbnail", "object", object, "error", err)
		return srcURL
	}

	return presigned.String()
}

func (t *ThumbStore) copyObject(ctx context.Context, object, srcURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return false
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.log.Warn("failed to fetch thumbnail", "url", srcURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err = t.client.PutObject(ctx, t.bucketName, object, resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		t.log.Warn("failed to store thumbnail", "object", object, "error", err)
		return false
	}

	return true
}

// Package mirror copies the published sitemap to Google Cloud Storage.
package mirror

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

type GCS struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCS uses application default credentials unless opts say otherwise.
// STORAGE_EMULATOR_HOST is honored by the underlying client.
func NewGCS(ctx context.Context, bucket, object string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.New("mirror bucket is required")
	}
	if object == "" {
		object = "sitemap.xml"
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &GCS{client: client, bucket: bucket, object: object}, nil
}

// Upload writes the file at path to gs://bucket/object and returns that URI.
func (g *GCS) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open sitemap", goerr.V("path", path))
	}
	defer f.Close()

	w := g.client.Bucket(g.bucket).Object(g.object).NewWriter(ctx)
	w.ContentType = "application/xml"
	w.CacheControl = "public, max-age=3600"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "failed to write object", goerr.V("bucket", g.bucket), goerr.V("object", g.object))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize object", goerr.V("bucket", g.bucket), goerr.V("object", g.object))
	}

	return "gs://" + g.bucket + "/" + g.object, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

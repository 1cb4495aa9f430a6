package storage

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// ObjectWriterFunc opens a writer for bucket/object. The object becomes
// visible when the writer is closed without error.
type ObjectWriterFunc func(ctx context.Context, bucket, object, contentType string, metadata map[string]string) io.WriteCloser

// GCSPublisher streams files into Cloud Storage.
type GCSPublisher struct {
	newWriter ObjectWriterFunc
}

// NewGCSPublisher creates a client from application default credentials,
// or from credentialsFile when given.
func NewGCSPublisher(ctx context.Context, credentialsFile string) (*GCSPublisher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewGCSPublisherWithWriter(func(ctx context.Context, bucket, object, contentType string, metadata map[string]string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.Metadata = metadata
		return w
	}), nil
}

// NewGCSPublisherWithWriter uses fn to open object writers.
func NewGCSPublisherWithWriter(fn ObjectWriterFunc) *GCSPublisher {
	return &GCSPublisher{newWriter: fn}
}

// Publish copies obj into dest and removes the local file.
func (p *GCSPublisher) Publish(ctx context.Context, obj Object, dest Destination) error {
	if dest.Scheme != SchemeGCS {
		return errors.Newf(errors.ErrorTypeInternal, "gcs publisher cannot write %s", dest)
	}
	f, err := os.Open(obj.LocalPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "opening staged output")
	}
	defer f.Close()

	// cancelling ctx aborts the upload, so a failed copy never commits
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := p.newWriter(ctx, dest.Bucket, dest.Key, obj.ContentType, obj.Metadata)
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeIO, "uploading "+dest.String())
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "finalizing "+dest.String()).
			WithDetail("bucket", dest.Bucket).
			WithDetail("object", dest.Key)
	}
	f.Close()
	return os.Remove(obj.LocalPath)
}

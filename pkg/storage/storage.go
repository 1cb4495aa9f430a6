// Package storage publishes finished output files to their destination:
// a local path, an S3 object or a GCS object.
//
// Output is always produced in a local temporary file first. Publishing
// is the last step of a conversion, so a destination only ever sees
// complete files.
package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// Scheme identifies a destination kind.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
	SchemeGCS  Scheme = "gs"
)

// Destination is a parsed output location.
type Destination struct {
	Scheme Scheme
	// Bucket is set for object stores
	Bucket string
	// Key is the object key, or the local path for SchemeFile
	Key string
	raw string
}

// String returns the destination as given.
func (d Destination) String() string { return d.raw }

// IsLocal reports whether d is a local path.
func (d Destination) IsLocal() bool { return d.Scheme == SchemeFile }

// ParseDestination parses s3://bucket/key, gs://bucket/object, file:///path
// or a plain local path.
func ParseDestination(raw string) (Destination, error) {
	if raw == "" {
		return Destination{}, errors.New(errors.ErrorTypeValidation, "empty output path")
	}
	if !strings.Contains(raw, "://") {
		return Destination{Scheme: SchemeFile, Key: raw, raw: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, errors.Wrap(err, errors.ErrorTypeValidation, "invalid output url "+raw)
	}
	switch Scheme(strings.ToLower(u.Scheme)) {
	case SchemeFile:
		if u.Path == "" {
			return Destination{}, errors.Newf(errors.ErrorTypeValidation, "output url %s has no path", raw)
		}
		return Destination{Scheme: SchemeFile, Key: u.Path, raw: raw}, nil
	case SchemeS3, SchemeGCS:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
			return Destination{}, errors.Newf(errors.ErrorTypeValidation,
				"output url %s must name a bucket and an object", raw)
		}
		return Destination{Scheme: Scheme(strings.ToLower(u.Scheme)), Bucket: u.Host, Key: key, raw: raw}, nil
	}
	return Destination{}, errors.Newf(errors.ErrorTypeValidation, "unsupported output scheme %q", u.Scheme)
}

// Object describes a file being published.
type Object struct {
	// LocalPath is the finished temporary file
	LocalPath   string
	ContentType string
	Metadata    map[string]string
}

// Publisher moves a finished file to its destination. On success the
// local file no longer needs to exist.
type Publisher interface {
	Publish(ctx context.Context, obj Object, dest Destination) error
}

// TempDir returns the directory a temporary file for dest should live
// in. Local outputs are staged next to the destination so publishing is
// a rename within one file system.
func TempDir(dest Destination, override string) string {
	if override != "" {
		return override
	}
	if dest.IsLocal() {
		return filepath.Dir(dest.Key)
	}
	return os.TempDir()
}

// LocalPublisher renames files into place.
type LocalPublisher struct{}

// Publish creates missing parent directories and renames obj into place,
// copying when the rename crosses file systems.
func (LocalPublisher) Publish(ctx context.Context, obj Object, dest Destination) error {
	if !dest.IsLocal() {
		return errors.Newf(errors.ErrorTypeInternal, "local publisher cannot write %s", dest)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest.Key), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "creating output directory")
	}
	if err := os.Rename(obj.LocalPath, dest.Key); err == nil {
		return nil
	}
	if err := copyFile(obj.LocalPath, dest.Key); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "publishing "+dest.Key)
	}
	return os.Remove(obj.LocalPath)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Router dispatches on the destination scheme. Object store publishers
// are created once, on first use; a Router is safe for concurrent use.
type Router struct {
	Local LocalPublisher
	// NewS3 and NewGCS build publishers lazily; nil means unsupported
	NewS3  func(ctx context.Context) (Publisher, error)
	NewGCS func(ctx context.Context) (Publisher, error)

	mu      sync.Mutex
	s3, gcs Publisher
}

// NewRouter returns a Router that builds S3 and GCS publishers from the
// ambient credentials.
func NewRouter(cfg Config) *Router {
	return &Router{
		NewS3: func(ctx context.Context) (Publisher, error) {
			return NewS3Publisher(ctx, cfg.S3Region)
		},
		NewGCS: func(ctx context.Context) (Publisher, error) {
			return NewGCSPublisher(ctx, cfg.GCSCredentialsFile)
		},
	}
}

// Config holds object store settings.
type Config struct {
	S3Region           string
	GCSCredentialsFile string
}

// Publish implements Publisher.
func (r *Router) Publish(ctx context.Context, obj Object, dest Destination) error {
	p, err := r.publisher(ctx, dest.Scheme)
	if err != nil {
		return err
	}
	return p.Publish(ctx, obj, dest)
}

func (r *Router) publisher(ctx context.Context, s Scheme) (Publisher, error) {
	switch s {
	case SchemeFile:
		return r.Local, nil
	case SchemeS3:
		return r.lazy(ctx, &r.s3, r.NewS3, "s3")
	case SchemeGCS:
		return r.lazy(ctx, &r.gcs, r.NewGCS, "gcs")
	}
	return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported destination scheme %q", s)
}

// lazy returns *slot, building it with build under r.mu when unset. A
// failed build is retried on the next call.
func (r *Router) lazy(ctx context.Context, slot *Publisher, build func(context.Context) (Publisher, error), name string) (Publisher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *slot != nil {
		return *slot, nil
	}
	if build == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "%s output is not configured", name)
	}
	p, err := build(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "creating "+name+" client")
	}
	*slot = p
	return p, nil
}

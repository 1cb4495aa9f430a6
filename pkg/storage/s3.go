package storage

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ajitpratap0/pql/pkg/errors"
)

// Uploader is the subset of manager.Uploader used for publishing.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher uploads files with the multipart upload manager.
type S3Publisher struct {
	uploader Uploader
}

// NewS3Publisher loads the default AWS configuration. An empty region
// leaves the SDK's resolution in place.
func NewS3Publisher(ctx context.Context, region string) (*S3Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)
	return NewS3PublisherWithUploader(manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024
		u.Concurrency = 4
	})), nil
}

// NewS3PublisherWithUploader wraps an existing uploader.
func NewS3PublisherWithUploader(u Uploader) *S3Publisher {
	return &S3Publisher{uploader: u}
}

// Publish uploads obj to dest and removes the local file.
func (p *S3Publisher) Publish(ctx context.Context, obj Object, dest Destination) error {
	if dest.Scheme != SchemeS3 {
		return errors.Newf(errors.ErrorTypeInternal, "s3 publisher cannot write %s", dest)
	}
	f, err := os.Open(obj.LocalPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "opening staged output")
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:   aws.String(dest.Bucket),
		Key:      aws.String(dest.Key),
		Body:     f,
		Metadata: obj.Metadata,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := p.uploader.Upload(ctx, input); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "uploading "+dest.String()).
			WithDetail("bucket", dest.Bucket).
			WithDetail("key", dest.Key)
	}
	f.Close()
	return os.Remove(obj.LocalPath)
}

package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader copies a backup artifact off-box.
type Uploader interface {
	// Upload stores the file under bucket/prefix and returns its URI.
	Upload(ctx context.Context, bucket, prefix, filePath string) (string, error)
}

// S3Uploader implements Uploader with the AWS SDK v2.
type S3Uploader struct {
	client *s3.Client
}

// NewS3Uploader creates an S3 uploader with the given profile and region.
func NewS3Uploader(ctx context.Context, profile, region string) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Uploader{client: s3.NewFromConfig(cfg)}, nil
}

// Upload stores the artifact in S3 and returns the s3:// URI.
func (u *S3Uploader) Upload(ctx context.Context, bucket, prefix, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening backup artifact: %w", err)
	}
	defer f.Close()

	key := path.Join(prefix, filepath.Base(filePath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

var _ Uploader = (*S3Uploader)(nil)

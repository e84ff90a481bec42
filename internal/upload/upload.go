// Package upload copies archive files to S3-compatible object storage.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	archerr "github.com/johnayoung/go-trades-archiver/internal/errors"
)

const contentTypeCSV = "text/csv"

// Uploader stores a local file remotely and reports where it went.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (*Result, error)
}

// Config configures an S3Uploader. Credentials are used as given and not checked up front.
type Config struct {
	Bucket          string
	Folder          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible stores
	UsePathStyle    bool
}

// Result describes an uploaded object.
type Result struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Location string `json:"location"`
	ETag     string `json:"etag,omitempty"`
	Bytes    int64  `json:"bytes"`
}

// URI returns the object address in s3://bucket/key form.
func (r *Result) URI() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// S3Uploader uploads files with the S3 transfer manager. SDK retries are disabled so a
// failed upload surfaces immediately.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
	folder   string
	logger   *slog.Logger
}

// NewS3Uploader builds the S3 client and transfer manager for cfg.
func NewS3Uploader(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Uploader, error) {
	const op = "create uploader"

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, archerr.Upload(op, fmt.Errorf("bucket is required"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, archerr.Upload(op, fmt.Errorf("failed to load aws config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Uploader{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.LeavePartsOnError = false
		}),
		bucket: cfg.Bucket,
		folder: cfg.Folder,
		logger: logger,
	}, nil
}

// ObjectKey returns the key for localPath under folder: the file's base name joined to
// the folder with '/', ignoring leading and trailing slashes on the folder.
func ObjectKey(folder, localPath string) string {
	return path.Join(strings.Trim(folder, "/"), filepath.Base(localPath))
}

// Upload implements Uploader. An existing object under the same key is replaced.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (*Result, error) {
	const op = "upload archive"

	f, err := os.Open(localPath)
	if err != nil {
		return nil, archerr.Upload(op, fmt.Errorf("failed to open %s: %w", localPath, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, archerr.Upload(op, fmt.Errorf("failed to stat %s: %w", localPath, err))
	}

	key := ObjectKey(u.folder, localPath)

	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeCSV),
	})
	if err != nil {
		return nil, archerr.Upload(op, fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, u.bucket, key, err))
	}

	result := &Result{
		Bucket:   u.bucket,
		Key:      key,
		Location: out.Location,
		ETag:     strings.Trim(aws.ToString(out.ETag), `"`),
		Bytes:    info.Size(),
	}

	u.logger.Info("archive uploaded",
		"bucket", result.Bucket,
		"key", result.Key,
		"bytes", result.Bytes)

	return result, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kailas-cloud/searchcore/internal/domain"
)

// Compile-time check: Bucket implements Storage.
var _ Storage = (*Bucket)(nil)

var errUploadAborted = errors.New("upload aborted")

// s3API is the subset of the S3 client used here.
type s3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config locates the bucket. Static credentials are used when AccessKeyID is set,
// the default AWS credential chain otherwise.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PartSizeMB      int64
}

// Bucket stores archives as objects under a key prefix. Uploads stream through the
// multipart upload manager; an aborted upload never produces an object.
type Bucket struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewBucket creates an S3 storage from configuration.
func NewBucket(ctx context.Context, cfg S3Config) (*Bucket, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newBucket(client, cfg), nil
}

func newBucket(client s3API, cfg S3Config) *Bucket {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSizeMB > 0 {
			u.PartSize = cfg.PartSizeMB * 1024 * 1024
		}
	})
	return &Bucket{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}
}

func (b *Bucket) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// Create starts a streaming upload.
func (b *Bucket) Create(ctx context.Context, name string) (Writer, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid archive name %q", name)
	}
	pr, pw := io.Pipe()
	w := &uploadWriter{pw: pw, done: make(chan error, 1), key: b.key(name)}
	go func() {
		_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(w.key),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Open streams an archive. A missing object yields domain.ErrDumpNotFound.
func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("get object %s: %w", name, domain.ErrDumpNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", name, err)
	}
	return resp.Body, nil
}

// List returns the archive names under the prefix, sorted.
func (b *Bucket) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if b.prefix != "" {
		prefix = b.prefix + "/"
	}
	var names []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if !strings.Contains(name, "/") && isArchive(name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

// Ping checks that the bucket is reachable.
func (b *Bucket) Ping(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", b.bucket, err)
	}
	return nil
}

type uploadWriter struct {
	pw     *io.PipeWriter
	done   chan error
	key    string
	closed bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p) //nolint:wrapcheck // the upload error is reported as is
}

func (w *uploadWriter) Commit() error {
	if w.closed {
		return fmt.Errorf("upload %s already closed", w.key)
	}
	w.closed = true
	_ = w.pw.Close()
	if err := <-w.done; err != nil {
		return fmt.Errorf("upload %s: %w", w.key, err)
	}
	return nil
}

func (w *uploadWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.pw.CloseWithError(errUploadAborted)
	<-w.done
}

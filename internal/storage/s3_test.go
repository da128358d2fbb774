package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kailas-cloud/searchcore/internal/domain"
)

// fakeS3 keeps objects in a map. Multipart calls are not expected for small bodies and
// panic through the nil embedded interface.
type fakeS3 struct {
	s3API
	mu      sync.Mutex
	objects map[string][]byte
	headErr error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		key, ok := strings.CutPrefix(k, aws.ToString(in.Bucket)+"/")
		if ok && strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestBucket_UploadAndOpen(t *testing.T) {
	fake := newFakeS3()
	b := newBucket(fake, S3Config{Bucket: "backups", Prefix: "/searchcore/"})
	ctx := context.Background()

	w := write(t, b, "a.dump", "archive bytes")
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, ok := fake.objects["backups/searchcore/a.dump"]; !ok {
		t.Fatalf("objects = %v", fake.objects)
	}
	if got := read(t, b, "a.dump"); got != "archive bytes" {
		t.Errorf("content = %q", got)
	}

	fake.objects["backups/searchcore/nested/b.dump"] = nil
	fake.objects["backups/searchcore/notes.txt"] = nil
	names, err := b.List(ctx)
	if err != nil || !slices.Equal(names, []string{"a.dump"}) {
		t.Errorf("List = %v, %v", names, err)
	}
}

func TestBucket_AbortUploadsNothing(t *testing.T) {
	fake := newFakeS3()
	b := newBucket(fake, S3Config{Bucket: "backups"})

	write(t, b, "a.dump", "partial").Abort()
	if len(fake.objects) != 0 {
		t.Errorf("aborted upload stored %v", fake.objects)
	}
}

func TestBucket_OpenMissing(t *testing.T) {
	b := newBucket(newFakeS3(), S3Config{Bucket: "backups"})
	if _, err := b.Open(context.Background(), "nope.dump"); !errors.Is(err, domain.ErrDumpNotFound) {
		t.Errorf("Open = %v", err)
	}
}

func TestBucket_Ping(t *testing.T) {
	fake := newFakeS3()
	b := newBucket(fake, S3Config{Bucket: "backups"})
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	fake.headErr = errors.New("forbidden")
	if err := b.Ping(context.Background()); err == nil {
		t.Error("Ping ignored a head error")
	}
}

package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	name        string
	contentType string
	body        string
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, _ := io.ReadAll(r)
	f.name, f.contentType, f.body = name, opts.ContentType, string(b)
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, name string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("http://minio.local/" + bucket + "/" + name + "?X-Amz-Signature=x")
}

func TestSaveImage(t *testing.T) {
	fake := &fakeObjects{}
	s := &AttachmentStore{client: fake, bucket: "chat-attachments", expiry: time.Hour}

	ref, err := s.SaveImage(context.Background(), "conv-1", "data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("SaveImage err: %v", err)
	}
	if fake.body != "hello" || fake.contentType != "image/png" {
		t.Fatalf("unexpected upload: %+v", fake)
	}
	if !strings.HasPrefix(fake.name, "conversations/conv-1/") || !strings.HasSuffix(fake.name, ".png") {
		t.Fatalf("unexpected object name: %s", fake.name)
	}
	if !strings.Contains(ref, "chat-attachments/conversations/conv-1/") {
		t.Fatalf("unexpected ref: %s", ref)
	}
}

func TestDecodeDataURL(t *testing.T) {
	ct, data, err := DecodeDataURL("data:image/jpeg;base64,/9j/")
	if err != nil || ct != "image/jpeg" || len(data) != 3 {
		t.Fatalf("unexpected decode: %s %v %v", ct, data, err)
	}
	for _, bad := range []string{"https://x/y.png", "data:image/png,raw", "data:image/png;base64", "data:image/png;base64,***"} {
		if _, _, err := DecodeDataURL(bad); !errors.Is(err, ErrInvalidDataURL) {
			t.Fatalf("%q: expected ErrInvalidDataURL, got %v", bad, err)
		}
	}
}

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	content := []byte("%PDF-1.4 lab report")
	if err := s.Put(ctx, "doc-1", content, "application/pdf"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	content[0] = 'X'

	got, err := s.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != "%PDF-1.4 lab report" {
		t.Errorf("stored content must not alias the caller's buffer, got %q", got)
	}

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, "doc-1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "doc-1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestReadAll(t *testing.T) {
	data, err := ReadAll(strings.NewReader("hello"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadAll() = %q, %v", data, err)
	}

	_, err = ReadAll(io.LimitReader(zeroReader{}, MaxFileSize+10))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestHash(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Hash(nil); got != want {
		t.Errorf("Hash(nil) = %s, want %s", got, want)
	}
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Error("different content must hash differently")
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func notFound() error {
	return awserr.NewRequestFailure(awserr.New("NotFound", "not found", nil), http.StatusNotFound, "req-1")
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.types[*in.Bucket+"/"+*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "medeasy-documents", "/documents/")

	if err := s.Put(ctx, "doc-1", []byte("scan"), ""); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if _, ok := fake.objects["medeasy-documents/documents/doc-1"]; !ok {
		t.Fatalf("expected prefixed key, got %v", fake.objects)
	}
	if fake.types["medeasy-documents/documents/doc-1"] != "application/octet-stream" {
		t.Errorf("expected default content type")
	}

	got, err := s.Get(ctx, "doc-1")
	if err != nil || string(got) != "scan" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, "doc-1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "doc-1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if isNotFound(nil) || isNotFound(errors.New("timeout")) {
		t.Error("unexpected not found")
	}
	if !isNotFound(notFound()) || !isNotFound(awserr.New(s3.ErrCodeNoSuchKey, "", nil)) {
		t.Error("expected not found")
	}
}

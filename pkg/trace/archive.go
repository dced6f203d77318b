package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Archive stores exported session documents.
type Archive interface {
	// Put stores the object under name, replacing any previous one.
	Put(ctx context.Context, name string, r io.Reader) error

	// Get opens name. A missing object yields an error wrapping
	// fs.ErrNotExist.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Location describes where name is stored, for display.
	Location(name string) string
}

var (
	_ Archive = (*DirArchive)(nil)
	_ Archive = (*S3Archive)(nil)
)

// DirArchive keeps documents as files under a directory.
type DirArchive struct {
	root string
}

// NewDirArchive creates dir if needed and archives into it.
func NewDirArchive(dir string) (*DirArchive, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &DirArchive{root: abs}, nil
}

func (d *DirArchive) path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

func (d *DirArchive) Put(_ context.Context, name string, r io.Reader) error {
	full := d.path(name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (d *DirArchive) Get(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(d.path(name))
}

func (d *DirArchive) Location(name string) string { return d.path(name) }

// S3API is the subset of the S3 client S3Archive needs. *s3.Client
// satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive keeps documents as objects in a bucket, under an optional
// key prefix.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Archive creates an S3Archive. The client must already carry
// credentials, region and endpoint.
func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archive) key(name string) string {
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

func (a *S3Archive) Put(ctx context.Context, name string, r io.Reader) error {
	// PutObject wants a seekable body to compute the payload hash.
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(name)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return fmt.Errorf("trace: put s3://%s/%s: %w", a.bucket, a.key(name), err)
	}
	return nil
}

func (a *S3Archive) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("trace: get %s: %w", a.Location(name), fs.ErrNotExist)
		}
		return nil, err
	}
	return out.Body, nil
}

func (a *S3Archive) Location(name string) string {
	return "s3://" + a.bucket + "/" + a.key(name)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

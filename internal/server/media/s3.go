package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/voicenotes/internal/common"
)

const s3Scheme = "s3://"

// s3API is the part of *s3.Client the storage needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config describes an S3-compatible backend such as MinIO.
type S3Config struct {
	User     string
	Password string
	Bucket   string
	Region   string
	Endpoint string
	// TempDir holds downloaded blobs while the worker transcribes them.
	TempDir string
}

// S3Storage keeps blobs in a bucket under notes/<hash>_<name>.
type S3Storage struct {
	client  s3API
	bucket  string
	tempDir string
}

func NewS3Storage(ctx context.Context, c S3Config) (*S3Storage, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is not configured", common.ErrValidation)
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Storage{client: client, bucket: c.Bucket, tempDir: c.TempDir}, nil
}

func (s *S3Storage) ref(key string) string {
	return s3Scheme + s.bucket + "/" + key
}

// parseRef splits s3://bucket/key. Only refs for this bucket are accepted.
func (s *S3Storage) parseRef(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, s3Scheme)
	if !ok {
		return "", fmt.Errorf("%w: not an s3 reference: %q", common.ErrFileNotFound, ref)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" || bucket != s.bucket {
		return "", fmt.Errorf("%w: foreign s3 reference: %q", common.ErrFileNotFound, ref)
	}
	return key, nil
}

func (s *S3Storage) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	// PutObject needs a seekable body with a known length, so spool first.
	tmp, err := os.CreateTemp(s.tempDir, "voicenotes-s3-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp: %w", common.ErrStorage, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := newHasher()
	size, err := io.Copy(io.MultiWriter(tmp, h), readerWithContext(ctx, r))
	if err != nil {
		return "", fmt.Errorf("%w: spool blob: %w", common.ErrStorage, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("%w: rewind blob: %w", common.ErrStorage, err)
	}

	key := "notes/" + blobName(h.Sum(nil), filename)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object: %w", common.ErrStorage, err)
	}
	return s.ref(key), nil
}

func (s *S3Storage) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := s.parseRef(ref)
	if err != nil {
		return false, nil
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: head object: %w", common.ErrStorage, err)
	}
	return true, nil
}

func (s *S3Storage) Fetch(ctx context.Context, ref string) (string, func(), error) {
	key, err := s.parseRef(ref)
	if err != nil {
		return "", nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if isNotFound(err) {
		return "", nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, ref)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: get object: %w", common.ErrStorage, err)
	}
	defer out.Body.Close()

	// keep the original name suffix so transcribers can sniff the format
	pattern := "voicenotes-fetch-*_" + sanitize(key[strings.LastIndex(key, "/")+1:])
	tmp, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("%w: create temp: %w", common.ErrStorage, err)
	}
	release := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, out.Body); err != nil {
		_ = tmp.Close()
		release()
		return "", nil, fmt.Errorf("%w: download object: %w", common.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("%w: close temp: %w", common.ErrStorage, err)
	}
	return tmp.Name(), release, nil
}

func (s *S3Storage) Remove(ctx context.Context, ref string) error {
	key, err := s.parseRef(ref)
	if err != nil {
		return nil
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: delete object: %w", common.ErrStorage, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

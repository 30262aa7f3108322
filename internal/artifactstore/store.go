// Package artifactstore fetches model artifacts from the local filesystem or
// from S3.
package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/signalsfoundry/tripduration/artifact"
)

const s3Scheme = "s3"

// ObjectGetter is the slice of the S3 API the store uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store resolves artifact locations. The S3 client is created on first use
// so local-only deployments never touch AWS configuration. A Store is meant
// for startup use and is not safe for concurrent calls.
type Store struct {
	region string
	client ObjectGetter
}

type Option func(*Store)

// WithS3Client injects a preconfigured client.
func WithS3Client(c ObjectGetter) Option {
	return func(s *Store) { s.client = c }
}

// New returns a Store. An empty region defers to the default AWS chain.
func New(region string, opts ...Option) *Store {
	s := &Store{region: region}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsS3 reports whether location is an s3:// URI.
func IsS3(location string) bool {
	return strings.HasPrefix(strings.ToLower(location), s3Scheme+"://")
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", location, err)
	}
	if !strings.EqualFold(u.Scheme, s3Scheme) {
		return "", "", fmt.Errorf("%q is not an s3:// URI", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%q must name both a bucket and a key", location)
	}
	return u.Host, key, nil
}

// Open returns a reader for the artifact at location.
func (s *Store) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("empty artifact location")
	}
	if !IsS3(location) {
		return os.Open(location)
	}

	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return nil, err
	}
	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// LoadModel opens and decodes the artifact at location. Every failure wraps
// artifact.ErrModelLoad.
func (s *Store) LoadModel(ctx context.Context, location string, opts ...artifact.Option) (*artifact.Model, error) {
	rc, err := s.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", artifact.ErrModelLoad, err)
	}
	defer rc.Close()

	m, err := artifact.Load(rc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return m, nil
}

func (s *Store) s3Client(ctx context.Context) (ObjectGetter, error) {
	if s.client != nil {
		return s.client, nil
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if s.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(s.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	s.client = s3.NewFromConfig(cfg)
	return s.client, nil
}

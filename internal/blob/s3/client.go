// Package s3blob implements the domain blob interfaces on AWS SDK v2 and
// provides the cold-storage archiver for settled positions and the trade
// log. S3-compatible providers (MinIO, iDrive e2, Cloudflare R2) are
// supported through the Endpoint field.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection parameters for an S3-compatible object
// store.
type ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for AWS S3.
	Endpoint string

	// Region is the AWS region or the provider's equivalent.
	Region string

	// Bucket is the bucket all archive objects are written to.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL selects https when Endpoint is given without a scheme.
	UseSSL bool

	// ForcePathStyle puts the bucket in the path instead of the subdomain.
	// Required by MinIO and most self-hosted providers.
	ForcePathStyle bool
}

func (cfg ClientConfig) validate() error {
	if cfg.Bucket == "" {
		return fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return fmt.Errorf("s3blob: region is required")
	}
	return nil
}

// endpointURL returns the endpoint with a scheme, or "" when the default
// AWS endpoint applies.
func (cfg ClientConfig) endpointURL() string {
	ep := cfg.Endpoint
	if ep == "" || strings.Contains(ep, "://") {
		return ep
	}
	if cfg.UseSSL {
		return "https://" + ep
	}
	return "http://" + ep
}

// sdkOptions builds the per-client SDK overrides: custom endpoint and
// path-style addressing.
func (cfg ClientConfig) sdkOptions() []func(*s3.Options) {
	var opts []func(*s3.Options)
	if ep := cfg.endpointURL(); ep != "" {
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(ep) })
	}
	if cfg.ForcePathStyle {
		opts = append(opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return opts
}

// Client wraps the AWS SDK S3 client together with the archive bucket name.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates an S3 client with static credentials and the configured
// endpoint overrides.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, cfg.sdkOptions()...),
		bucket: cfg.Bucket,
	}, nil
}

// Ping verifies connectivity and bucket permissions with a HeadBucket call.
// Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: ping bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op. The underlying HTTP client needs no explicit teardown.
func (c *Client) Close() error {
	return nil
}

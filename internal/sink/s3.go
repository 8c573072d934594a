package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client the sink needs
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds optional overrides for the S3 client
type S3Config struct {
	Region    string
	Endpoint  string // for S3-compatible services
	AccessKey string
	SecretKey string
}

// parseS3URL parses s3://bucket/key into bucket and key parts
func parseS3URL(url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", url)
	}
	return parts[0], parts[1], nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

// s3Sink buffers the artifact and uploads it in one PutObject on Commit.
type s3Sink struct {
	ctx    context.Context
	client PutObjectAPI
	bucket string
	key    string
	buf    bytes.Buffer
	done   bool
}

func openS3(ctx context.Context, url string, o options) (*s3Sink, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}

	// Keys ending in a slash act like a directory.
	if strings.HasSuffix(key, "/") {
		key += FileName(o.now())
	}

	client := o.s3Client
	if client == nil {
		c, err := newS3Client(ctx, o.s3Config)
		if err != nil {
			return nil, err
		}
		client = c
	}

	return &s3Sink{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}

func (s *s3Sink) Write(p []byte) (int, error) {
	if s.done {
		return 0, fmt.Errorf("write to closed sink %s", s.Location())
	}
	return s.buf.Write(p)
}

func (s *s3Sink) Commit() error {
	if s.done {
		return fmt.Errorf("sink %s already closed", s.Location())
	}
	s.done = true

	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(s.buf.Bytes()),
		ContentType: aws.String("application/sql"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (s *s3Sink) Abort() error {
	s.done = true
	s.buf.Reset()
	return nil
}

func (s *s3Sink) Location() string { return "s3://" + s.bucket + "/" + s.key }

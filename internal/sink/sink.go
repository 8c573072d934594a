// Package sink provides the destinations a migration artifact can be written
// to: stdout, a local file, or an S3 object.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrSinkUnavailable is returned when the destination cannot be opened,
// written or finalized. Anything already written must be treated as invalid.
var ErrSinkUnavailable = errors.New("artifact sink unavailable")

// Stdout is the target name for standard output
const Stdout = "-"

// Sink is a scoped writable destination. Exactly one of Commit or Abort
// must be called once writing is done.
type Sink interface {
	io.Writer
	// Commit makes the written content visible at the destination.
	Commit() error
	// Abort discards anything written so far.
	Abort() error
	// Location describes where the content ends up.
	Location() string
}

type options struct {
	stdout   io.Writer
	now      func() time.Time
	s3Client PutObjectAPI
	s3Config S3Config
}

// Option configures Open
type Option func(*options)

// WithStdout replaces os.Stdout for the "-" target.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithClock sets the time used to name generated migration files.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithS3Client uses client for s3:// targets instead of building one.
func WithS3Client(client PutObjectAPI) Option {
	return func(o *options) { o.s3Client = client }
}

// WithS3Config sets region, endpoint and credentials for s3:// targets.
func WithS3Config(cfg S3Config) Option {
	return func(o *options) { o.s3Config = cfg }
}

// Open acquires the sink addressed by target.
//
//	"-"              standard output
//	"s3://bucket/key" S3 object, uploaded on Commit
//	anything else    local file path; a directory gets a generated file name
func Open(ctx context.Context, target string, opts ...Option) (Sink, error) {
	o := options{stdout: os.Stdout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		s   Sink
		err error
	)
	switch {
	case target == Stdout:
		s = &streamSink{w: o.stdout}
	case strings.HasPrefix(target, "s3://"):
		s, err = openS3(ctx, target, o)
	default:
		s, err = openFile(target, o.now())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return s, nil
}

// Write acquires target, hands it to fn and commits. The sink is aborted on
// every failure path, including a panic in fn.
func Write(ctx context.Context, target string, fn func(io.Writer) error, opts ...Option) (location string, err error) {
	s, err := Open(ctx, target, opts...)
	if err != nil {
		return "", err
	}

	committed := false
	defer func() {
		if !committed {
			_ = s.Abort()
		}
	}()

	if err := fn(s); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", ErrSinkUnavailable, s.Location(), err)
	}
	if err := s.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit %s: %w", ErrSinkUnavailable, s.Location(), err)
	}
	committed = true

	return s.Location(), nil
}

// WriteTo is a convenience wrapper around Write for io.WriterTo values such
// as a migration artifact.
func WriteTo(ctx context.Context, target string, src io.WriterTo, opts ...Option) (string, error) {
	return Write(ctx, target, func(w io.Writer) error {
		_, err := src.WriteTo(w)
		return err
	}, opts...)
}

type streamSink struct {
	w io.Writer
}

func (s *streamSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *streamSink) Commit() error               { return nil }
func (s *streamSink) Abort() error                { return nil }
func (s *streamSink) Location() string            { return "stdout" }

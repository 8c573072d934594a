package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local) }

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "migration_20240309_140507.sql", FileName(clock()))
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, filepath.Join(dir, "migration_20240309_140507.sql"), ResolvePath(dir, clock()))
	assert.Equal(t, filepath.Join("out", "migration_20240309_140507.sql"), ResolvePath("out/", clock()))
	assert.Equal(t, filepath.Join(DefaultDir, "migration_20240309_140507.sql"), ResolvePath("", clock()))
	assert.Equal(t, filepath.Join(dir, "schema.sql"), ResolvePath(filepath.Join(dir, "schema.sql"), clock()))
}

func TestWriteFileCommits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations") + "/"

	loc, err := Write(context.Background(), dir, writeString("-- hello\n"), WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "migration_20240309_140507.sql"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "-- hello\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(loc))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteFileAbortsOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.sql")
	boom := errors.New("render failed")

	_, err := Write(context.Background(), path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "-- partial")
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkUnavailable)
	assert.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial artifact must be discarded")
}

func TestWriteFileAbortsOnPanic(t *testing.T) {
	dir := t.TempDir()

	assert.Panics(t, func() {
		_, _ = Write(context.Background(), filepath.Join(dir, "out.sql"), func(w io.Writer) error {
			panic("boom")
		})
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenFileUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Open(context.Background(), filepath.Join(blocker, "sub", "out.sql"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkUnavailable)
}

func TestWriteStdout(t *testing.T) {
	var buf bytes.Buffer
	loc, err := Write(context.Background(), Stdout, writeString("select 1;\n"), WithStdout(&buf))
	require.NoError(t, err)
	assert.Equal(t, "stdout", loc)
	assert.Equal(t, "select 1;\n", buf.String())
}

type artifactFunc func(w io.Writer) (int64, error)

func (f artifactFunc) WriteTo(w io.Writer) (int64, error) { return f(w) }

func TestWriteTo(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteTo(context.Background(), Stdout, artifactFunc(func(w io.Writer) (int64, error) {
		n, err := io.WriteString(w, "abc")
		return int64(n), err
	}), WithStdout(&buf))
	require.NoError(t, err)
	assert.Equal(t, "abc", buf.String())
}

type fakeS3 struct {
	puts []*s3.PutObjectInput
	body []string
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.body = append(f.body, string(data))
	return &s3.PutObjectOutput{}, nil
}

func TestWriteS3(t *testing.T) {
	client := &fakeS3{}

	loc, err := Write(context.Background(), "s3://bucket/migrations/", writeString("-- s3\n"),
		WithS3Client(client), WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/migrations/migration_20240309_140507.sql", loc)

	require.Len(t, client.puts, 1)
	assert.Equal(t, "bucket", aws.ToString(client.puts[0].Bucket))
	assert.Equal(t, "migrations/migration_20240309_140507.sql", aws.ToString(client.puts[0].Key))
	assert.Equal(t, "-- s3\n", client.body[0])
}

func TestWriteS3AbortSkipsUpload(t *testing.T) {
	client := &fakeS3{}

	_, err := Write(context.Background(), "s3://bucket/x.sql", func(w io.Writer) error {
		return errors.New("nope")
	}, WithS3Client(client))
	require.Error(t, err)
	assert.Empty(t, client.puts)
}

func TestWriteS3UploadFailure(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}

	_, err := Write(context.Background(), "s3://bucket/x.sql", writeString("x"), WithS3Client(client))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkUnavailable)
	assert.True(t, strings.Contains(err.Error(), "access denied"))
}

func TestParseS3URL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		bucket  string
		key     string
		wantErr bool
	}{
		{in: "s3://b/k.sql", bucket: "b", key: "k.sql"},
		{in: "s3://b/a/b/c.sql", bucket: "b", key: "a/b/c.sql"},
		{in: "s3://b", wantErr: true},
		{in: "s3:///k", wantErr: true},
		{in: "s3://b/", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			bucket, key, err := parseS3URL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultDir is where generated migrations land when no file name is given
const DefaultDir = "migrations"

// FileName returns the generated migration file name for t,
// e.g. migration_20240309_140507.sql.
func FileName(t time.Time) string {
	return fmt.Sprintf("migration_%s.sql", t.Format("20060102_150405"))
}

// ResolvePath turns target into a file path. Targets that end in a path
// separator or name an existing directory get a generated file name.
func ResolvePath(target string, now time.Time) string {
	if target == "" {
		target = DefaultDir + string(os.PathSeparator)
	}
	if strings.HasSuffix(target, "/") || strings.HasSuffix(target, string(os.PathSeparator)) {
		return filepath.Join(target, FileName(now))
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return filepath.Join(target, FileName(now))
	}
	return target
}

// fileSink writes to a temp file next to the destination and renames it into
// place on Commit, so an aborted run never leaves a partial migration behind.
type fileSink struct {
	path string
	tmp  *os.File
	done bool
}

func openFile(target string, now time.Time) (*fileSink, error) {
	path := ResolvePath(target, now)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &fileSink{path: path, tmp: tmp}, nil
}

func (f *fileSink) Write(p []byte) (int, error) {
	if f.done {
		return 0, fmt.Errorf("write to closed sink %s", f.path)
	}
	return f.tmp.Write(p)
}

func (f *fileSink) Commit() error {
	if f.done {
		return fmt.Errorf("sink %s already closed", f.path)
	}
	f.done = true

	if err := f.tmp.Chmod(0o644); err != nil {
		f.discard()
		return err
	}
	if err := f.tmp.Sync(); err != nil {
		f.discard()
		return err
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(f.tmp.Name())
		return err
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		os.Remove(f.tmp.Name())
		return err
	}
	return nil
}

func (f *fileSink) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.discard()
	return nil
}

func (f *fileSink) discard() {
	f.tmp.Close()
	os.Remove(f.tmp.Name())
}

func (f *fileSink) Location() string { return f.path }

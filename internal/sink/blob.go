package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Blob is an encoded result.
type Blob interface {
	Size() int64
	Open() (io.ReadCloser, error)
}

// FileBlob is a blob backed by a file outside any sink work directory.
type FileBlob struct {
	path string
	size int64
}

// NewFileBlob describes the file at path.
func NewFileBlob(path string) (*FileBlob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("blob %s is a directory", path)
	}
	return &FileBlob{path: path, size: info.Size()}, nil
}

// Path returns the backing file.
func (b *FileBlob) Path() string { return b.path }

func (b *FileBlob) Size() int64 { return b.size }

func (b *FileBlob) Open() (io.ReadCloser, error) { return os.Open(b.path) }

// MemoryBlob holds an encoded result in memory.
type MemoryBlob struct {
	data []byte
}

// NewMemoryBlob wraps data without copying it.
func NewMemoryBlob(data []byte) *MemoryBlob { return &MemoryBlob{data: data} }

func (b *MemoryBlob) Size() int64 { return int64(len(b.data)) }

func (b *MemoryBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Persist writes blob to dest, creating parent directories. File blobs are
// renamed when possible and copied otherwise. An existing dest is replaced.
func Persist(blob Blob, dest string) error {
	if blob == nil {
		return errors.New("persist: nil blob")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("persist: create directory: %w", err)
	}
	if fb, ok := blob.(*FileBlob); ok {
		if err := os.Rename(fb.path, dest); err == nil {
			fb.path = dest
			return nil
		}
	}

	if err := copyBlob(blob, dest); err != nil {
		return err
	}
	if fb, ok := blob.(*FileBlob); ok {
		_ = os.Remove(fb.path)
		fb.path = dest
	}
	return nil
}

// copyBlob writes blob to dest through a temp file in the same directory.
func copyBlob(blob Blob, dest string) error {
	src, err := blob.Open()
	if err != nil {
		return fmt.Errorf("persist: open blob: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("persist: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("persist: copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: rename: %w", err)
	}
	return nil
}

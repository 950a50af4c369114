package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// BlobStore stores immutable snapshot blobs. Implementations must be safe for
// concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible on Close.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes at off. It returns io.EOF when fewer bytes remain.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over at most length bytes at off. It returns
	// io.EOF if off is at or past the end of the blob.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob under construction.
type WritableBlob interface {
	io.WriteCloser
	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// Aborter is implemented by writable blobs that can discard an unfinished write.
// After Abort nothing of the write becomes visible.
type Aborter interface {
	Abort() error
}

// Discard abandons w. It aborts when w supports it and closes otherwise.
func Discard(w WritableBlob) {
	if a, ok := w.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	if b.Size() == 0 {
		return []byte{}, nil
	}
	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

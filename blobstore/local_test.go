package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"Memory": NewMemoryStore(),
		"Local":  NewLocalStore(t.TempDir()),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			blobName := "snapshots/0001.snap"
			data := []byte("hello world, this is a test blob for percolate")

			w, err := store.Create(ctx, blobName)
			require.NoError(t, err)
			n, err := w.Write(data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())
			assert.ErrorIs(t, w.Close(), io.ErrClosedPipe)

			blob, err := store.Open(ctx, blobName)
			require.NoError(t, err)
			defer blob.Close()
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err = blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			require.Equal(t, "world", string(buf))

			r, err := blob.ReadRange(ctx, 13, 4)
			require.NoError(t, err)
			content, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			require.Equal(t, "this", string(content))

			require.NoError(t, store.Put(ctx, "snapshots/0002.snap", []byte("second")))
			require.NoError(t, store.Put(ctx, "other", nil))

			names, err := store.List(ctx, "snapshots/")
			require.NoError(t, err)
			require.Equal(t, []string{"snapshots/0001.snap", "snapshots/0002.snap"}, names)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)

			got, err := ReadAll(ctx, store, "other")
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, store.Delete(ctx, blobName))
			require.NoError(t, store.Delete(ctx, blobName))

			names, err = store.List(ctx, "snapshots/")
			require.NoError(t, err)
			require.Equal(t, []string{"snapshots/0002.snap"}, names)

			_, err = store.Open(ctx, blobName)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStore_ReadRange_Boundaries(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("0123456789")
			require.NoError(t, store.Put(ctx, "boundary.bin", data))

			blob, err := store.Open(ctx, "boundary.bin")
			require.NoError(t, err)
			defer blob.Close()

			r, err := blob.ReadRange(ctx, 0, 10)
			require.NoError(t, err)
			content, _ := io.ReadAll(r)
			r.Close()
			require.True(t, bytes.Equal(data, content))

			r, err = blob.ReadRange(ctx, 8, 5)
			require.NoError(t, err)
			content, err = io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, "89", string(content))
			r.Close()

			_, err = blob.ReadRange(ctx, 20, 5)
			require.ErrorIs(t, err, io.EOF)

			buf := make([]byte, 4)
			n, err := blob.ReadAt(ctx, buf, 8)
			assert.Equal(t, 2, n)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestBlobStore_Canceled(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			assert.ErrorIs(t, store.Put(ctx, "x", []byte("x")), context.Canceled)
			_, err := store.Open(ctx, "x")
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestLocalStore_HidesInFlightWrites(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	w, err := store.Create(ctx, "pending")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
	_, err = os.Stat(filepath.Join(dir, "pending"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, w.Close())
	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, names)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBlobStore_Abort(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			w, err := store.Create(ctx, "aborted")
			require.NoError(t, err)
			_, err = w.Write([]byte("never visible"))
			require.NoError(t, err)

			Discard(w)

			_, err = store.Open(ctx, "aborted")
			assert.ErrorIs(t, err, ErrNotFound)
			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

// Package blobstore abstracts where percolator snapshots live.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral use
//   - LocalStore: a directory on the local filesystem
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement BlobStore to support another backend:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore

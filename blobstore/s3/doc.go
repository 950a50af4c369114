// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "percolator/")
//
//	p, err := percolate.New(m, percolate.WithBlobStore(store))
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large snapshots
//   - CRC32C integrity checks on upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3

// Package storage holds uploaded media objects until a job fetches them.
//
// Backends register themselves by provider name:
//
//   - storage/local: files under a base directory
//   - storage/s3: Amazon S3 and S3-compatible services such as MinIO
//
// Configuration:
//
//	storage:
//	  enabled: true
//	  provider: "s3"
//	  bucket: "mediascribe-uploads"
//	  region: "us-east-1"
package storage

package store

import (
	"context"
	"fmt"
	"os"
)

// Type selects a storage backend.
type Type string

const (
	TypeMemory     Type = "memory"
	TypeFilesystem Type = "filesystem"
	TypeSQLite     Type = "sqlite"
	TypeS3         Type = "s3"
)

// NewFromEnv creates a store from environment variables.
//
//   - WAIVERN_STORE_TYPE: "memory", "filesystem" (default), "sqlite", "s3"
//   - WAIVERN_STORE_PATH: base dir (filesystem) or database file (sqlite)
//   - WAIVERN_S3_BUCKET (required for s3), WAIVERN_S3_REGION or
//     AWS_REGION, WAIVERN_S3_ENDPOINT, WAIVERN_S3_PREFIX
func NewFromEnv(ctx context.Context) (Store, error) {
	t := Type(os.Getenv("WAIVERN_STORE_TYPE"))
	if t == "" {
		t = TypeFilesystem
	}
	switch t {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFilesystem:
		path := os.Getenv("WAIVERN_STORE_PATH")
		if path == "" {
			path = ".wct"
		}
		return NewFileStore(path)
	case TypeSQLite:
		path := os.Getenv("WAIVERN_STORE_PATH")
		if path == "" {
			path = ".wct/wct.db"
		}
		return NewSQLiteStore(path)
	case TypeS3:
		bucket := os.Getenv("WAIVERN_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("WAIVERN_S3_BUCKET is required for s3 storage")
		}
		region := os.Getenv("WAIVERN_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("WAIVERN_S3_ENDPOINT"),
			Prefix:   os.Getenv("WAIVERN_S3_PREFIX"),
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s", t)
	}
}

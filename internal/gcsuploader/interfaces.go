package gcsuploader

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadBytes writes data to bucketName/objectName and returns the gs:// URI.
	UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error)
}

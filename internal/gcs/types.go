package gcs

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// WriteObject stores data under bucket/object, replacing any previous content.
	// A rejected write returns an error wrapping domain.ErrPermissionDenied.
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error

	// ObjectURL returns a URL the object can be downloaded from.
	ObjectURL(ctx context.Context, bucket, object string) (string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// ExtractFilenameFromGCSURI extracts the filename from a storage URI.
	ExtractFilenameFromGCSURI(uri string) string
}

// PublicURL is the unsigned https URL of an object.
func PublicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + object
}

// URI is the gs:// form of an object location.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

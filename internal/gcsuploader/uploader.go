package gcsuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/budget-insights/internal/domain"
	"google.golang.org/api/googleapi"
)

const (
	uploadTimeout = 2 * time.Minute
	signedURLTTL  = 7 * 24 * time.Hour
)

// WriteObject writes data to bucket/object. An empty contentType is derived from
// the object extension. 401 and 403 responses are reported as
// domain.ErrPermissionDenied so callers can try another location.
func WriteObject(ctx context.Context, client *storage.Client, bucketName, objectName, contentType string, data []byte) error {
	if contentType == "" {
		contentType = contentTypeFor(objectName)
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return classify(fmt.Errorf("copy to GCS writer: %w", err))
	}

	// Close finalizes the upload and reports server-side rejections.
	if err := w.Close(); err != nil {
		return classify(fmt.Errorf("finalize upload %s/%s: %w", bucketName, objectName, err))
	}

	return nil
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func FetchFromGCS(ctx context.Context, client *storage.Client, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := SplitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("fetchFromGCS: %s: %w", gcsURI, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}

	return data, nil
}

// SplitGCSURI splits gs://bucket/path into its bucket and object parts.
func SplitGCSURI(gcsURI string) (string, string, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}

// classify maps authorization failures onto domain.ErrPermissionDenied.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
	}
	return err
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

package gcsuploader

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/budget-insights/internal/gcs"
)

// Re-export interface from shared package for backward compatibility
type StorageService = gcs.StorageService

// Signer holds the service account used for V4 signed URLs.
type Signer struct {
	Email      string
	PrivateKey []byte
}

// LoadSigner reads a PEM private key for email. Empty inputs yield a nil signer.
func LoadSigner(email, keyFile string) (*Signer, error) {
	if email == "" || keyFile == "" {
		return nil, nil
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("LoadSigner: reading %s: %w", keyFile, err)
	}
	return &Signer{Email: email, PrivateKey: key}, nil
}

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage through a shared client.
type GCSStorageService struct {
	client *storage.Client
	signer *Signer
}

var _ StorageService = (*GCSStorageService)(nil)

// NewGCSStorageService creates a storage client. With a nil signer, ObjectURL returns public URLs.
func NewGCSStorageService(ctx context.Context, signer *Signer) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: create storage client: %w", err)
	}
	return &GCSStorageService{client: client, signer: signer}, nil
}

// Close releases the storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// WriteObject delegates to WriteObject with the shared client.
func (s *GCSStorageService) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	return WriteObject(ctx, s.client, bucket, object, contentType, data)
}

// ObjectURL returns a V4 signed GET URL when a signer is configured.
func (s *GCSStorageService) ObjectURL(ctx context.Context, bucket, object string) (string, error) {
	if s.signer == nil {
		return gcs.PublicURL(bucket, object), nil
	}

	url, err := s.client.Bucket(bucket).SignedURL(object, &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email,
		PrivateKey:     s.signer.PrivateKey,
		Method:         "GET",
		Expires:        time.Now().Add(signedURLTTL),
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("ObjectURL: signing %s/%s: %w", bucket, object, err)
	}
	return url, nil
}

// FetchFromGCS delegates to FetchFromGCS with the shared client.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCS(ctx, s.client, gcsURI)
}

// ExtractFilenameFromGCSURI delegates to the existing ExtractFilenameFromGCSURI function.
func (s *GCSStorageService) ExtractFilenameFromGCSURI(uri string) string {
	return ExtractFilenameFromGCSURI(uri)
}

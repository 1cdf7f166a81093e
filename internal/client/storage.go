package client

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// StorageClient wraps the Google Cloud Storage client, used as the recording
// archive when R2 is not configured.
type StorageClient struct {
	client     *storage.Client
	bucketName string
}

// NewStorageClient creates a new storage client.
func NewStorageClient(ctx context.Context, bucketName string, opts ...option.ClientOption) (*StorageClient, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &StorageClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Close closes the client.
func (c *StorageClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Put uploads data to cloud storage and returns its gs:// location.
func (c *StorageClient) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	w := c.client.Bucket(c.bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload to GCS: %w", err)
	}

	return "gs://" + c.bucketName + "/" + objectName, nil
}

// Exists checks if an object exists in cloud storage.
func (c *StorageClient) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := c.client.Bucket(c.bucketName).Object(objectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ping checks that the bucket is reachable.
func (c *StorageClient) Ping(ctx context.Context) error {
	_, err := c.client.Bucket(c.bucketName).Attrs(ctx)
	return err
}

package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage is the object store used for conversation exports
type Storage interface {
	// Put returns a writer for the object at key; closing it commits the write
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get opens the object at key for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// cloudStorage implements Storage on a Cloud Storage bucket
type cloudStorage struct {
	bucket string
	client *storage.Client
}

// NewStorage creates a Storage backed by the given Cloud Storage bucket
func NewStorage(ctx context.Context, bucket string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client",
			goerr.V("bucket", bucket))
	}

	return &cloudStorage{
		bucket: bucket,
		client: client,
	}, nil
}

func (s *cloudStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return s.client.Bucket(s.bucket).Object(key).NewWriter(ctx), nil
}

func (s *cloudStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open export object",
			goerr.V("bucket", s.bucket), goerr.V("key", key))
	}

	return reader, nil
}

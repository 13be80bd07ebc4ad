// Package objectstore archives finished story audio in a NATS JetStream object store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/book-expert/story-service/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerContentType = "Content-Type"
	contentTypeMPEG   = "audio/mpeg"
)

// NatsObjectStore implements core.ObjectStore on a JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// Options configures the archive bucket. Zero values mean unlimited.
type Options struct {
	Bucket   string
	TTL      time.Duration
	MaxBytes int64
}

// New creates the bucket, or binds to it if it already exists.
func New(jetstreamContext nats.JetStreamContext, opts Options) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      opts.Bucket,
		Description: fmt.Sprintf("Narrated story audio archived by the story service (%s).", opts.Bucket),
		TTL:         opts.TTL,
		MaxBytes:    opts.MaxBytes,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", opts.Bucket, err)
		}

		store, err = jetstreamContext.ObjectStore(opts.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", opts.Bucket, err)
		}
	}

	return &NatsObjectStore{bucket: opts.Bucket, store: store}, nil
}

// Download retrieves an object. A missing key yields an error wrapping core.ErrNotFound.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: object '%s' in bucket '%s'", core.ErrNotFound, key, n.bucket)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key as MP3 audio, replacing any previous object.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "story audio",
		Headers:     nats.Header{headerContentType: []string{contentTypeMPEG}},
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

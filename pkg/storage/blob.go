package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// BlobStore keeps every bucket in its own gocloud.dev bucket
type BlobStore struct {
	buckets map[string]*blob.Bucket
}

var _ Store = (*BlobStore)(nil)

// NewFileStore keeps objects under root, one directory per bucket
func NewFileStore(root string) (*BlobStore, error) {
	s := &BlobStore{buckets: make(map[string]*blob.Bucket, len(publicBuckets))}
	for name := range publicBuckets {
		b, err := fileblob.OpenBucket(filepath.Join(root, name), &fileblob.Options{CreateDir: true})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open bucket %s: %w", name, err)
		}
		s.buckets[name] = b
	}
	return s, nil
}

// NewMemStore keeps objects in memory. Used by tests.
func NewMemStore() *BlobStore {
	s := &BlobStore{buckets: make(map[string]*blob.Bucket, len(publicBuckets))}
	for name := range publicBuckets {
		s.buckets[name] = memblob.OpenBucket(nil)
	}
	return s
}

// Close releases every bucket
func (s *BlobStore) Close() error {
	var errs []error
	for _, b := range s.buckets {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}

func (s *BlobStore) bucket(bucket, key string) (*blob.Bucket, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	return s.buckets[bucket], nil
}

// Put writes r to bucket/key, replacing any existing object
func (s *BlobStore) Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) (Object, error) {
	b, err := s.bucket(bucket, key)
	if err != nil {
		return Object{}, err
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}

	// cancelling the writer's context discards a partial upload
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := b.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return Object{}, fmt.Errorf("failed to create object: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return Object{}, fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("failed to commit object: %w", err)
	}

	attrs, err := b.Attributes(ctx, key)
	if err != nil {
		return Object{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return Object{Bucket: bucket, Key: key, ContentType: attrs.ContentType, Size: attrs.Size, ModTime: attrs.ModTime}, nil
}

// Open returns a reader for bucket/key. Callers close it.
func (s *BlobStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error) {
	b, err := s.bucket(bucket, key)
	if err != nil {
		return nil, Object{}, err
	}
	r, err := b.NewReader(ctx, key, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, Object{}, ErrNotFound
	}
	if err != nil {
		return nil, Object{}, err
	}
	obj := Object{Bucket: bucket, Key: key, ContentType: r.ContentType(), Size: r.Size(), ModTime: r.ModTime()}
	if obj.ContentType == "" {
		obj.ContentType = mime.TypeByExtension(path.Ext(key))
	}
	return r, obj, nil
}

// Delete removes the given keys. Missing objects are not an error.
func (s *BlobStore) Delete(ctx context.Context, bucket string, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.bucket(bucket, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			errs = append(errs, fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err))
		}
	}
	return errors.Join(errs...)
}

// Exists reports whether bucket/key is present
func (s *BlobStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	b, err := s.bucket(bucket, key)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, key)
}

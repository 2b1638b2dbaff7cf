// Package storage keeps uploaded objects in named buckets and builds the
// public, signed and cache-busted URLs handed to clients.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	BucketAvatars            = "avatars"
	BucketPropertyImages     = "property-images"
	BucketCommunityImages    = "community-images"
	BucketMessageAttachments = "message-attachments"
)

var (
	ErrInvalidKey    = errors.New("invalid object key")
	ErrUnknownBucket = errors.New("unknown bucket")
	ErrNotFound      = errors.New("object not found")
)

var publicBuckets = map[string]bool{
	BucketAvatars:            true,
	BucketPropertyImages:     true,
	BucketCommunityImages:    false,
	BucketMessageAttachments: false,
}

// KnownBucket reports whether bucket is one of the configured buckets
func KnownBucket(bucket string) bool {
	_, ok := publicBuckets[bucket]
	return ok
}

// IsPublic reports whether objects in bucket are served without a token
func IsPublic(bucket string) bool {
	return publicBuckets[bucket]
}

// Object describes a stored object
type Object struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
}

// Store is an object store partitioned by bucket
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) (Object, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, bucket string, keys ...string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// ValidateKey rejects keys that could escape the bucket or that are not
// object references at all (inline data URIs, absolute paths).
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.HasPrefix(key, "data:"):
		return fmt.Errorf("%w: data URI", ErrInvalidKey)
	case strings.HasPrefix(key, "/"), strings.Contains(key, `\`):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func validate(bucket, key string) error {
	if !KnownBucket(bucket) {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	return ValidateKey(key)
}

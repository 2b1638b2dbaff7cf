package storage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	publicPrefix = "/storage/v1/object/public/"
	signPrefix   = "/storage/v1/object/sign/"

	signConcurrency = 8
)

// Signer issues and checks object scoped tokens
type Signer interface {
	SignObject(bucket, key string, ttl time.Duration) (string, time.Time, error)
	VerifyObject(token, bucket, key string) error
}

// SignedURL is a time limited link to a private object
type SignedURL struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// KeyError reports a key that could not be signed
type KeyError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// URLBuilder renders object URLs rooted at baseURL
type URLBuilder struct {
	baseURL string
	signer  Signer
}

func NewURLBuilder(baseURL string, signer Signer) *URLBuilder {
	return &URLBuilder{baseURL: strings.TrimRight(baseURL, "/"), signer: signer}
}

// Signer returns the signer used for private objects
func (b *URLBuilder) Signer() Signer {
	return b.signer
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// PublicURL returns the unauthenticated URL of an object in a public bucket
func (b *URLBuilder) PublicURL(bucket, key string) string {
	return b.baseURL + publicPrefix + bucket + "/" + escapeKey(key)
}

// SignedURL returns a link to bucket/key valid for ttl
func (b *URLBuilder) SignedURL(bucket, key string, ttl time.Duration) (SignedURL, error) {
	if err := validate(bucket, key); err != nil {
		return SignedURL{}, err
	}
	token, expiresAt, err := b.signer.SignObject(bucket, key, ttl)
	if err != nil {
		return SignedURL{}, fmt.Errorf("failed to sign %s/%s: %w", bucket, key, err)
	}
	return SignedURL{
		Key:       key,
		URL:       b.baseURL + signPrefix + bucket + "/" + escapeKey(key) + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt,
	}, nil
}

// SignedURLs signs keys concurrently. Results keep the input order; keys
// that fail are reported in failed and never abort the batch.
func (b *URLBuilder) SignedURLs(ctx context.Context, bucket string, keys []string, ttl time.Duration) ([]SignedURL, []KeyError) {
	results := make([]SignedURL, len(keys))
	errs := make([]error, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(signConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = b.SignedURL(bucket, key, ttl)
			return nil
		})
	}
	_ = g.Wait()

	ok := make([]SignedURL, 0, len(keys))
	var failed []KeyError
	for i, key := range keys {
		if errs[i] != nil {
			failed = append(failed, KeyError{Key: key, Error: errs[i].Error()})
			continue
		}
		ok = append(ok, results[i])
	}
	return ok, failed
}

// ExtractKey recovers the object key from a public or signed URL of bucket.
// Query strings such as cache busting parameters are ignored.
func ExtractKey(rawURL, bucket string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	for _, prefix := range []string{publicPrefix, signPrefix} {
		marker := prefix + bucket + "/"
		idx := strings.Index(u.Path, marker)
		if idx < 0 {
			continue
		}
		key := u.Path[idx+len(marker):]
		if ValidateKey(key) != nil {
			return "", false
		}
		return key, true
	}
	return "", false
}

// CacheBust sets the v query parameter to t in unix seconds so clients
// refetch an object that was replaced under a new URL.
func CacheBust(rawURL string, t time.Time) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("v", strconv.FormatInt(t.Unix(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

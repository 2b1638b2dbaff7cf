package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/jwtutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuilder() *URLBuilder {
	signer := jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "storage-test-key", ExpirationHours: 1})
	return NewURLBuilder("http://localhost:8080/", signer)
}

func TestValidateKey(t *testing.T) {
	valid := []string{"1/avatar-1.jpg", "12/34_file.pdf", "a"}
	for _, k := range valid {
		assert.NoError(t, ValidateKey(k), k)
	}
	invalid := []string{"", "/etc/passwd", "../x", "1/../../x", "data:image/png;base64,AAAA", `a\b`, "a//b", "./a"}
	for _, k := range invalid {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, k)
	}
}

func stores(t *testing.T) map[string]*BlobStore {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	mem := NewMemStore()
	t.Cleanup(func() {
		file.Close()
		mem.Close()
	})
	return map[string]*BlobStore{"file": file, "mem": mem}
}

func TestBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			obj, err := store.Put(ctx, BucketAvatars, "7/avatar-1.png", strings.NewReader("pngdata"), "image/png")
			require.NoError(t, err)
			assert.Equal(t, int64(7), obj.Size)
			assert.Equal(t, "image/png", obj.ContentType)

			exists, err := store.Exists(ctx, BucketAvatars, "7/avatar-1.png")
			require.NoError(t, err)
			assert.True(t, exists)

			rc, meta, err := store.Open(ctx, BucketAvatars, "7/avatar-1.png")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "pngdata", string(body))
			assert.Equal(t, "image/png", meta.ContentType)
			assert.Equal(t, int64(7), meta.Size)

			require.NoError(t, store.Delete(ctx, BucketAvatars, "7/avatar-1.png", "7/missing.png"))
			exists, err = store.Exists(ctx, BucketAvatars, "7/avatar-1.png")
			require.NoError(t, err)
			assert.False(t, exists)

			_, _, err = store.Open(ctx, BucketAvatars, "7/avatar-1.png")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStoreBucketsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	defer store.Close()

	_, err := store.Put(ctx, BucketMessageAttachments, "1/1-abc_plano.pdf", strings.NewReader("%PDF-1.4"), "")
	require.NoError(t, err)

	exists, err := store.Exists(ctx, BucketAvatars, "1/1-abc_plano.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	_, meta, err := store.Open(ctx, BucketMessageAttachments, "1/1-abc_plano.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", meta.ContentType, "content type falls back to the extension")
}

func TestBlobStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	defer store.Close()

	_, err := store.Put(ctx, "nope", "a.png", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrUnknownBucket)

	_, err = store.Put(ctx, BucketAvatars, "../escape.png", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = store.Delete(ctx, BucketAvatars, "../escape.png")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPublicURLAndExtractKey(t *testing.T) {
	b := newBuilder()

	u := b.PublicURL(BucketAvatars, "5/avatar-99.webp")
	assert.Equal(t, "http://localhost:8080/storage/v1/object/public/avatars/5/avatar-99.webp", u)

	key, ok := ExtractKey(CacheBust(u, time.Unix(1700000000, 0)), BucketAvatars)
	require.True(t, ok)
	assert.Equal(t, "5/avatar-99.webp", key)

	_, ok = ExtractKey(u, BucketPropertyImages)
	assert.False(t, ok)
	_, ok = ExtractKey("", BucketAvatars)
	assert.False(t, ok)
}

func TestCacheBustReplacesVersion(t *testing.T) {
	busted := CacheBust("http://x/a.png?v=1&size=2", time.Unix(1700000000, 0))

	u, err := url.Parse(busted)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", u.Query().Get("v"))
	assert.Equal(t, "2", u.Query().Get("size"))
	assert.Equal(t, "", CacheBust("", time.Now()))
}

func TestSignedURLCarriesVerifiableToken(t *testing.T) {
	b := newBuilder()

	signed, err := b.SignedURL(BucketMessageAttachments, "3/1700_contract.pdf", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, signed.URL, "/storage/v1/object/sign/message-attachments/3/1700_contract.pdf?token=")
	assert.WithinDuration(t, time.Now().Add(time.Hour), signed.ExpiresAt, 5*time.Second)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	token := u.Query().Get("token")
	assert.NoError(t, b.Signer().VerifyObject(token, BucketMessageAttachments, "3/1700_contract.pdf"))
	assert.Error(t, b.Signer().VerifyObject(token, BucketMessageAttachments, "3/other.pdf"))

	key, ok := ExtractKey(signed.URL, BucketMessageAttachments)
	require.True(t, ok)
	assert.Equal(t, "3/1700_contract.pdf", key)
}

func TestSignedURLsBatch(t *testing.T) {
	b := newBuilder()
	keys := []string{"1/a.jpg", "../bad", "1/b.jpg", "data:x", "1/c.jpg"}

	ok, failed := b.SignedURLs(context.Background(), BucketCommunityImages, keys, 15*time.Minute)

	require.Len(t, ok, 3)
	assert.Equal(t, "1/a.jpg", ok[0].Key)
	assert.Equal(t, "1/b.jpg", ok[1].Key)
	assert.Equal(t, "1/c.jpg", ok[2].Key)
	for _, s := range ok {
		assert.Contains(t, s.URL, "token=")
	}
	require.Len(t, failed, 2)
	assert.Equal(t, "../bad", failed[0].Key)
	assert.Equal(t, "data:x", failed[1].Key)
}

func TestKeys(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	assert.Equal(t, "4/avatar-1700000000123.png", AvatarKey(4, "png", ts))
	assert.Regexp(t, `^8/1700000000123-[0-9a-f]{8}_mi_contrato_final_\.pdf$`, AttachmentKey(8, "mi contrato (final).pdf", ts))
	assert.NotEqual(t, AttachmentKey(8, "plano.pdf", ts), AttachmentKey(8, "plano.pdf", ts), "same name in the same millisecond")
	assert.Regexp(t, `^2/1700000000123-[0-9a-f]{8}\.jpg$`, PropertyImageKey(2, "jpg", ts))
	assert.Regexp(t, `^6/1700000000123-[0-9a-f]{8}\.webp$`, CommunityPhotoKey(6, "webp", ts))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFileName("../../etc/passwd"))
	assert.Equal(t, "file", SanitizeFileName("..."))
	assert.Equal(t, "a_b.txt", SanitizeFileName("a  b.txt"))
	long := strings.Repeat("x", 150) + ".pdf"
	got := SanitizeFileName(long)
	assert.Len(t, got, maxFileNameLength)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

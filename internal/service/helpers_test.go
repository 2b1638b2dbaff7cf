package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/jwtutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var ctx = context.Background()

func newJWT() *jwtutil.JWTUtil {
	return jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "service-test-key", ExpirationHours: 1})
}

func newURLs() *storage.URLBuilder {
	return storage.NewURLBuilder("http://localhost:8080", newJWT())
}

func newStore(t *testing.T) *storage.BlobStore {
	t.Helper()
	store := storage.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newNotifier(db *gorm.DB) (*Notifier, *events.Recorder) {
	rec := &events.Recorder{}
	return NewNotifier(db, rec), rec
}

// pngBytes encodes a w x h PNG
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, status, apperr.StatusOf(err), err.Error())
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

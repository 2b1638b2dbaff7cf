package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"go.uber.org/zap"
)

const publicCacheMaxAge = time.Hour

// StorageHandler serves stored objects over the public and signed URLs
// built by storage.URLBuilder
type StorageHandler struct {
	store  storage.Store
	signer storage.Signer
}

func NewStorageHandler(store storage.Store, signer storage.Signer) *StorageHandler {
	return &StorageHandler{store: store, signer: signer}
}

func objectRef(c echo.Context) (string, string, error) {
	bucket := c.Param("bucket")
	if !storage.KnownBucket(bucket) {
		return "", "", apperr.NotFound("bucket not found")
	}
	key, err := url.PathUnescape(c.Param("*"))
	if err != nil || storage.ValidateKey(key) != nil {
		return "", "", apperr.BadRequest("invalid object key")
	}
	return bucket, key, nil
}

func (h *StorageHandler) stream(c echo.Context, bucket, key, cacheControl string) error {
	rc, obj, err := h.store.Open(c.Request().Context(), bucket, key)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("object not found")
	}
	if err != nil {
		return apperr.Internal("failed to open object", err)
	}
	defer rc.Close()

	header := c.Response().Header()
	header.Set("Cache-Control", cacheControl)
	header.Set(echo.HeaderLastModified, obj.ModTime.UTC().Format(http.TimeFormat))
	if obj.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(obj.Size, 10))
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

// Public handles GET /storage/v1/object/public/:bucket/*
func (h *StorageHandler) Public(c echo.Context) error {
	bucket, key, err := objectRef(c)
	if err != nil {
		return err
	}
	if !storage.IsPublic(bucket) {
		return apperr.NotFound("object not found")
	}
	return h.stream(c, bucket, key, "public, max-age="+strconv.Itoa(int(publicCacheMaxAge.Seconds())))
}

// Signed handles GET /storage/v1/object/sign/:bucket/*?token=
func (h *StorageHandler) Signed(c echo.Context) error {
	bucket, key, err := objectRef(c)
	if err != nil {
		return err
	}
	token := c.QueryParam("token")
	if token == "" {
		return apperr.Forbidden("missing token")
	}
	if err := h.signer.VerifyObject(token, bucket, key); err != nil {
		logger.FromEcho(c).Warn("Signed URL rejected", zap.String("bucket", bucket), zap.Error(err))
		return apperr.Forbidden("invalid or expired token")
	}
	return h.stream(c, bucket, key, "private, no-store")
}

// Package handler adapts the services to echo routes.
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	mid "github.com/norbi4050/misiones-arrienda-sub010/internal/middleware"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 50
)

// currentUser returns the authenticated caller or a 401
func currentUser(c echo.Context) (uint, error) {
	userID, ok := mid.GetUserIDFromContext(c)
	if !ok || userID == 0 {
		return 0, apperr.Unauthorized("authentication required")
	}
	return userID, nil
}

func parseUint(raw, name string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.BadRequest("invalid " + name)
	}
	return uint(id), nil
}

// paramID parses a positive path parameter
func paramID(c echo.Context, name string) (uint, error) {
	return parseUint(c.Param(name), name)
}

func queryInt(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid " + name)
	}
	return &v, nil
}

func queryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid " + name)
	}
	return &v, nil
}

// parsePage reads page and limit. Missing values take the defaults, out of
// range values are rejected.
func parsePage(c echo.Context, defaultLimit, maxLimit int) (service.Page, error) {
	p := service.Page{Page: 1, Limit: defaultLimit}
	page, err := queryInt(c, "page")
	if err != nil {
		return p, err
	}
	if page != nil {
		if *page < 1 {
			return p, apperr.BadRequest("page must be >= 1")
		}
		p.Page = *page
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return p, err
	}
	if limit != nil {
		if *limit < 1 || *limit > maxLimit {
			return p, apperr.BadRequest(fmt.Sprintf("limit must be between 1 and %d", maxLimit))
		}
		p.Limit = *limit
	}
	return p, nil
}

// readUpload loads one multipart file, refusing anything above maxSize
func readUpload(fh *multipart.FileHeader, maxSize int64) (service.UploadInput, error) {
	if fh.Size > maxSize {
		return service.UploadInput{}, apperr.BadRequest(fmt.Sprintf("file %s is too large (max %s)", fh.Filename, filevalidator.FormatFileSize(maxSize)))
	}
	f, err := fh.Open()
	if err != nil {
		return service.UploadInput{}, apperr.BadRequest("failed to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return service.UploadInput{}, apperr.BadRequest("failed to read uploaded file")
	}
	if int64(len(data)) > maxSize {
		return service.UploadInput{}, apperr.BadRequest(fmt.Sprintf("file %s is too large (max %s)", fh.Filename, filevalidator.FormatFileSize(maxSize)))
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = filevalidator.DetectMimeType(data)
	}
	return service.UploadInput{FileName: fh.Filename, ContentType: contentType, Data: data}, nil
}

// formFile reads the single file sent under field
func formFile(c echo.Context, field string, maxSize int64) (service.UploadInput, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return service.UploadInput{}, apperr.BadRequest("file is required")
		}
		return service.UploadInput{}, apperr.BadRequest("invalid multipart form")
	}
	return readUpload(fh, maxSize)
}

// formFiles reads every file sent under field, at most maxFiles
func formFiles(c echo.Context, field string, maxFiles int, maxSize int64) ([]service.UploadInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.BadRequest("invalid multipart form")
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, apperr.BadRequest("at least one file is required")
	}
	if len(headers) > maxFiles {
		return nil, apperr.BadRequest(fmt.Sprintf("at most %d files per request", maxFiles))
	}
	files := make([]service.UploadInput, 0, len(headers))
	for _, fh := range headers {
		in, err := readUpload(fh, maxSize)
		if err != nil {
			return nil, err
		}
		files = append(files, in)
	}
	return files, nil
}

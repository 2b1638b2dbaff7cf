// Package filevalidator checks uploaded files against size limits, an
// allow-list of MIME types, magic-number signatures and a small set of
// script injection patterns.
package filevalidator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for DecodeConfig
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	TypeJPEG = "image/jpeg"
	TypeJPG  = "image/jpg"
	TypePNG  = "image/png"
	TypeWebP = "image/webp"
	TypeGIF  = "image/gif"
	TypePDF  = "application/pdf"
	TypeDoc  = "application/msword"
	TypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeText = "text/plain"

	typeOctetStream = "application/octet-stream"
	typeZip         = "application/zip"
	typeOLE         = "application/x-ole-storage"
)

// Size limits in bytes
const (
	MaxImageSize    int64 = 5 * 1024 * 1024
	MaxDocumentSize int64 = 10 * 1024 * 1024
	MaxAvatarSize   int64 = 5 * 1024 * 1024
)

const scanWindow = 10 * 1024

var (
	ImageTypes    = []string{TypeJPEG, TypeJPG, TypePNG, TypeWebP, TypeGIF}
	DocumentTypes = []string{TypePDF, TypeDoc, TypeDocx, TypeText}
)

type signature struct {
	mime   string
	offset int
	magic  []byte
}

// checked in order, first match wins
var signatures = []signature{
	{TypeJPEG, 0, []byte{0xFF, 0xD8, 0xFF}},
	{TypePNG, 0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{TypeGIF, 0, []byte("GIF87a")},
	{TypeGIF, 0, []byte("GIF89a")},
	{TypeWebP, 8, []byte("WEBP")},
	{TypePDF, 0, []byte("%PDF")},
	{typeZip, 0, []byte{0x50, 0x4B, 0x03, 0x04}},
	{typeOLE, 0, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
}

var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)onload\s*=`),
	regexp.MustCompile(`(?i)onerror\s*=`),
	regexp.MustCompile(`(?i)onclick\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<object`),
	regexp.MustCompile(`(?i)<embed`),
}

// Metadata describes a validated file
type Metadata struct {
	Size   int64  `json:"size"`
	Type   string `json:"type"`
	Hash   string `json:"hash"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Result is the outcome of a validation. Errors make the file invalid,
// warnings do not.
type Result struct {
	Valid    bool      `json:"valid"`
	Errors   []string  `json:"errors"`
	Warnings []string  `json:"warnings"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ImageOptions tunes ValidateImage. Zero values take the defaults.
type ImageOptions struct {
	MaxSize           int64
	AllowedTypes      []string
	RequireDimensions bool
	MinWidth          int
	MinHeight         int
	MaxWidth          int
	MaxHeight         int
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.MaxSize <= 0 {
		o.MaxSize = MaxImageSize
	}
	if len(o.AllowedTypes) == 0 {
		o.AllowedTypes = ImageTypes
	}
	if o.MinWidth <= 0 {
		o.MinWidth = 100
	}
	if o.MinHeight <= 0 {
		o.MinHeight = 100
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 4000
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 4000
	}
	return o
}

// Validator is safe for concurrent use
type Validator struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// New returns a validator with an empty hash blocklist
func New() *Validator {
	return &Validator{blocked: make(map[string]struct{})}
}

// AddBlockedHash blocks files whose SHA-256 hex digest equals hash. Case
// and surrounding space are ignored.
func (v *Validator) AddBlockedHash(hash string) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocked[hash] = struct{}{}
}

// IsHashBlocked reports whether hash is on the blocklist
func (v *Validator) IsHashBlocked(hash string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.blocked[hash]
	return ok
}

// ValidateImage validates an image upload. An empty declaredType falls back
// to the detected type.
func (v *Validator) ValidateImage(data []byte, declaredType string, opts ImageOptions) Result {
	opts = opts.withDefaults()
	result := v.Validate(data, declaredType, opts.AllowedTypes, opts.MaxSize)
	if result.Metadata == nil {
		return result
	}

	if opts.RequireDimensions && isImageType(result.Metadata.Type) {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			result.warn("could not read image dimensions")
			return result
		}
		result.Metadata.Width, result.Metadata.Height = cfg.Width, cfg.Height
		if cfg.Width < opts.MinWidth || cfg.Height < opts.MinHeight {
			result.fail("image too small, minimum %dx%dpx", opts.MinWidth, opts.MinHeight)
		}
		if cfg.Width > opts.MaxWidth || cfg.Height > opts.MaxHeight {
			result.fail("image too large, maximum %dx%dpx", opts.MaxWidth, opts.MaxHeight)
		}
	}
	return result
}

// ValidateDocument validates a document upload
func (v *Validator) ValidateDocument(data []byte, declaredType string, maxSize int64) Result {
	if maxSize <= 0 {
		maxSize = MaxDocumentSize
	}
	return v.Validate(data, declaredType, DocumentTypes, maxSize)
}

// Validate runs the checks shared by every file kind
func (v *Validator) Validate(data []byte, declaredType string, allowed []string, maxSize int64) Result {
	result := Result{Valid: true, Errors: []string{}, Warnings: []string{}}

	size := int64(len(data))
	fileType := declaredType
	if fileType == "" {
		fileType = DetectMimeType(data)
	}

	if size > maxSize {
		result.fail("file too large, maximum allowed %s", FormatFileSize(maxSize))
	}
	if size == 0 {
		result.fail("file is empty")
	}
	if !slices.Contains(allowed, fileType) {
		result.fail("file type not allowed: %s", fileType)
	}
	if size > 0 && !matchesSignature(data, fileType) {
		result.fail("file content does not match its declared type")
	}

	hash := Hash(data)
	if v.IsHashBlocked(hash) {
		result.fail("file blocked for security reasons")
	}
	if threats := scanMalicious(data); len(threats) > 0 {
		result.fail("potentially malicious content detected")
	}

	if size > maxSize*8/10 && size <= maxSize {
		result.warn("file is quite large, consider optimizing it")
	}

	result.Metadata = &Metadata{Size: size, Type: canonicalType(fileType), Hash: hash}
	return result
}

// DetectMimeType sniffs the type from the leading bytes
func DetectMimeType(data []byte) string {
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(data) >= end && bytes.Equal(data[sig.offset:end], sig.magic) {
			if sig.mime == TypeWebP && !bytes.HasPrefix(data, []byte("RIFF")) {
				continue
			}
			return sig.mime
		}
	}
	return typeOctetStream
}

func matchesSignature(data []byte, declaredType string) bool {
	detected := DetectMimeType(data)
	switch declaredType {
	case TypeJPEG, TypeJPG:
		return detected == TypeJPEG
	case TypeDocx:
		return detected == typeZip
	case TypeDoc:
		return detected == typeOLE
	case TypeText:
		return detected == typeOctetStream && utf8.Valid(data) && !bytes.ContainsRune(data, 0)
	default:
		return detected == declaredType
	}
}

func scanMalicious(data []byte) []string {
	window := data
	if len(window) > scanWindow {
		window = window[:scanWindow]
	}
	var threats []string
	for _, pattern := range maliciousPatterns {
		if pattern.Match(window) {
			threats = append(threats, pattern.String())
		}
	}
	return threats
}

// Hash returns the SHA-256 hex digest of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isImageType(t string) bool {
	return slices.Contains(ImageTypes, t)
}

func canonicalType(t string) string {
	if t == TypeJPG {
		return TypeJPEG
	}
	return t
}

// FormatFileSize renders bytes as "1.5 MB"
func FormatFileSize(bytes int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, units[unit])
}

// Extension returns the canonical file extension for an allowed type
func Extension(mime string) string {
	switch mime {
	case TypeJPEG, TypeJPG:
		return "jpg"
	case TypePNG:
		return "png"
	case TypeWebP:
		return "webp"
	case TypeGIF:
		return "gif"
	case TypePDF:
		return "pdf"
	case TypeDoc:
		return "doc"
	case TypeDocx:
		return "docx"
	case TypeText:
		return "txt"
	default:
		return "bin"
	}
}

// Dimensions decodes the width and height of a PNG, JPEG or GIF image
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// IsImage reports whether mime is one of the accepted image types
func IsImage(mime string) bool {
	return isImageType(mime)
}

package storage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxFileNameLength = 100

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName keeps letters, digits, dot, underscore and dash
func SanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "file"
	}
	if len(name) > maxFileNameLength {
		name = name[len(name)-maxFileNameLength:]
	}
	return name
}

// AvatarKey is {userID}/avatar-{unixMillis}.{ext}
func AvatarKey(userID uint, ext string, t time.Time) string {
	return fmt.Sprintf("%d/avatar-%d.%s", userID, t.UnixMilli(), ext)
}

// AttachmentKey is {conversationID}/{unixMillis}-{random}_{sanitizedName}
func AttachmentKey(conversationID uint, fileName string, t time.Time) string {
	return fmt.Sprintf("%d/%d-%s_%s", conversationID, t.UnixMilli(), shortID(), SanitizeFileName(fileName))
}

// PropertyImageKey is {propertyID}/{unixMillis}-{random}.{ext}
func PropertyImageKey(propertyID uint, ext string, t time.Time) string {
	return fmt.Sprintf("%d/%d-%s.%s", propertyID, t.UnixMilli(), shortID(), ext)
}

// CommunityPhotoKey is {userID}/{unixMillis}-{random}.{ext}
func CommunityPhotoKey(userID uint, ext string, t time.Time) string {
	return fmt.Sprintf("%d/%d-%s.%s", userID, t.UnixMilli(), shortID(), ext)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

package utils

import (
	"strings"

	"github.com/google/uuid"
)

// SplitDataURL returns the mime type and base64 body of a data URL. Bare
// base64 is treated as jpeg.
func SplitDataURL(value string) (string, string) {
	if !strings.HasPrefix(value, "data:") {
		return "image/jpeg", value
	}

	value = strings.TrimPrefix(value, "data:")
	parts := strings.SplitN(value, ";base64,", 2)
	if len(parts) != 2 {
		return "image/jpeg", ""
	}
	return parts[0], parts[1]
}

// GenerateUID returns a random identifier without dashes, suitable for object names.
func GenerateUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

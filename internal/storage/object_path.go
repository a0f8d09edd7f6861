package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"
)

func sanitizePathSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			builder.WriteByte(ch)
		case ch >= 'A' && ch <= 'Z':
			builder.WriteByte(ch + 32)
		case ch == '-', ch == '_':
			builder.WriteByte(ch)
		}
	}
	return builder.String()
}

func normalizeExtension(ext string) string {
	trimmed := strings.TrimSpace(ext)
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return "bin"
	}
	return sanitizePathSegment(trimmed)
}

func skuSegment(code string) string {
	seg := sanitizePathSegment(strings.ReplaceAll(strings.TrimSpace(code), " ", "-"))
	if seg == "" {
		return "unknown"
	}
	return seg
}

// UploadKey 原图路径：uploads/{sku}/{yyyy/mm/dd}/{uid}.{ext}
func UploadKey(skuCode, uid, ext string, now time.Time) string {
	now = now.UTC()
	datedir := fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day())
	base := sanitizeFileBase(uid)
	if base == "" {
		base = fmt.Sprintf("%d", now.UnixNano())
	}
	return path.Join("uploads", skuSegment(skuCode), datedir, base+"."+normalizeExtension(ext))
}

// MaskKey 掩码路径：masks/{sku}/{frame}.png
func MaskKey(skuCode string, frameID int64) string {
	return path.Join("masks", skuSegment(skuCode), fmt.Sprintf("%d.png", frameID))
}

// OutputKey 输出路径：outputs/{sku}/{frame}/{generation}_{index}.{ext}
func OutputKey(skuCode string, frameID, generationID int64, index int, ext string) string {
	return path.Join("outputs", skuSegment(skuCode), fmt.Sprintf("%d", frameID),
		fmt.Sprintf("%d_%d.%s", generationID, index, normalizeExtension(ext)))
}

func detectContentType(key string) string {
	ext := path.Ext(key)
	typeName := mime.TypeByExtension(strings.ToLower(ext))
	if typeName == "" {
		return "application/octet-stream"
	}
	return typeName
}

func joinPrefix(prefix, key string) string {
	cleanPrefix := trimPrefix(prefix)
	if cleanPrefix == "" {
		return strings.TrimLeft(key, "/")
	}
	return path.Join(cleanPrefix, strings.TrimLeft(key, "/"))
}

func trimPrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func sanitizeFileBase(value string) string {
	replaced := strings.ReplaceAll(strings.TrimSpace(value), " ", "-")
	sanitized := sanitizePathSegment(replaced)
	return strings.Trim(sanitized, "-_")
}

// cleanKey 校验并规范化 key，拒绝越级路径。
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimLeft(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("storage: invalid key %q", key)
		}
	}
	return cleaned, nil
}

// SanitizeToken lowercases the provided token and keeps alphanumeric, dash, and underscore characters only.
func SanitizeToken(value string) string {
	return sanitizePathSegment(value)
}

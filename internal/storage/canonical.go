package storage

import (
	"net/url"
	"strings"
)

// keyNormalizer 把存储返回的各种引用还原为规范 key。
//
// bases 是可能出现在 URL 中的对象根地址（公开域名、桶域名、路径风格的 endpoint/bucket）。
// prefix 是存储内部使用的 key 前缀，不出现在规范 key 中。
type keyNormalizer struct {
	bases  []*url.URL
	bucket string
	prefix string
}

func newKeyNormalizer(bucket, prefix string, bases ...string) keyNormalizer {
	n := keyNormalizer{bucket: bucket, prefix: trimPrefix(prefix)}
	for _, raw := range bases {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "/") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		u.Path = strings.TrimRight(u.Path, "/")
		n.bases = append(n.bases, u)
	}
	return n
}

func (n keyNormalizer) CanonicalKey(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	if strings.HasPrefix(ref, "s3://") {
		rest := strings.TrimPrefix(ref, "s3://")
		i := strings.Index(rest, "/")
		if i <= 0 {
			return "", false
		}
		if n.bucket != "" && rest[:i] != n.bucket {
			return "", false
		}
		return n.finish(rest[i+1:])
	}

	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "/") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", false
		}
		for _, base := range n.bases {
			if !strings.EqualFold(u.Host, base.Host) {
				continue
			}
			p := u.Path
			if base.Path != "" {
				if !strings.HasPrefix(p, base.Path+"/") {
					continue
				}
				p = p[len(base.Path):]
			}
			return n.finish(p)
		}
		if u.Host == "" && u.Scheme == "" {
			return n.finish(u.Path)
		}
		return "", false
	}

	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return n.finish(ref)
}

func (n keyNormalizer) finish(key string) (string, bool) {
	key = strings.TrimLeft(key, "/")
	if n.prefix != "" && strings.HasPrefix(key, n.prefix+"/") {
		key = strings.TrimPrefix(key, n.prefix+"/")
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", false
	}
	return cleaned, true
}

// objectKey 返回带存储前缀的实际对象 key。
func (n keyNormalizer) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if n.prefix == "" {
		return cleaned, nil
	}
	return joinPrefix(n.prefix, cleaned), nil
}

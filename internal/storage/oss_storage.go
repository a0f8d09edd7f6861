package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"facechanger/internal/config"
)

type ossStorage struct {
	bucket        *oss.Bucket
	publicBaseURL string
	expiry        time.Duration
	keyNormalizer
}

func NewOSSStorage(cfg config.Config) (Storage, error) {
	endpoint := strings.TrimSpace(cfg.StorageOSSEndpoint)
	if endpoint == "" {
		return nil, errors.New("storage: missing OSS endpoint")
	}
	bucketName := strings.TrimSpace(cfg.StorageOSSBucket)
	if bucketName == "" {
		return nil, errors.New("storage: missing OSS bucket")
	}
	accessKey := strings.TrimSpace(cfg.StorageOSSAccessKeyID)
	secretKey := strings.TrimSpace(cfg.StorageOSSAccessKeySecret)
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("storage: missing OSS credentials")
	}

	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("storage: open OSS bucket: %w", err)
	}

	host := strings.TrimRight(strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://"), "/")
	publicBase := remotePublicBase(cfg.StoragePublicBaseURL)

	return &ossStorage{
		bucket:        bucket,
		publicBaseURL: publicBase,
		expiry:        presignExpiry(cfg.StoragePresignExpiry),
		keyNormalizer: newKeyNormalizer(bucketName, cfg.StorageOSSPrefix, publicBase, bucketName+"."+host),
	}, nil
}

func (s *ossStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = detectContentType(objectKey)
	}

	options := []oss.Option{oss.WithContext(ctx), oss.ContentType(contentType)}
	if err := s.bucket.PutObject(objectKey, bytes.NewReader(data), options...); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	canonical, _ := cleanKey(key)
	return canonical, nil
}

func (s *ossStorage) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.GetObject(objectKey, oss.WithContext(ctx))
	if err != nil {
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *ossStorage) ResolveReadableURL(ctx context.Context, key string) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + objectKey, nil
	}
	signed, err := s.bucket.SignURL(objectKey, oss.HTTPGet, int64(s.expiry/time.Second))
	if err != nil {
		return "", fmt.Errorf("sign object url: %w", err)
	}
	return signed, nil
}

var _ Storage = (*ossStorage)(nil)

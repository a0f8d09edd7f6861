package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facechanger/internal/entity"
	"facechanger/internal/headmask"
	"facechanger/internal/ledger"
	"facechanger/internal/utils"
)

// 单个上传文件的大小上限
const maxUploadBytes = 32 << 20

var errUnsupportedMedia = errors.New("unsupported media type")

// uploadFailed 将上传读取错误映射为 415 或 400
func uploadFailed(c *gin.Context, err error) {
	if errors.Is(err, errUnsupportedMedia) {
		ErrorResponse(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, err.Error())
		return
	}
	BadRequest(c, ErrCodeInvalidRequest, err.Error())
}

type uploadedFile struct {
	Name        string
	Data        []byte
	ContentType string
	Ext         string
}

func (h *HTTPHandler) publicURL(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	base := h.storagePublicBase
	if base == "" {
		base = "/files"
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(trimmed, "/"))
}

// readableURL 优先使用存储后端的可读地址（私有桶为签名地址），失败时退回公共路径
func (h *HTTPHandler) readableURL(ctx context.Context, key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	if h.storage != nil {
		url, err := h.storage.ResolveReadableURL(ctx, key)
		if err == nil && url != "" {
			return url
		}
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("resolve_readable_url_failed")
		}
	}
	return h.publicURL(key)
}

// buildFrameItem 组装帧详情，输出按版本展开并标注收藏
func (h *HTTPHandler) buildFrameItem(ctx context.Context, frame entity.DbFrame) (entity.FrameItem, error) {
	item := entity.FrameItem{
		DbFrame:     frame,
		OriginalURL: h.readableURL(ctx, frame.OriginalKey),
		MaskURL:     h.readableURL(ctx, frame.MaskKey),
		Items:       []entity.OutputItem{},
	}
	if len(frame.Outputs) == 0 {
		return item, nil
	}

	versions, err := h.repo.ListOutputVersions(ctx, frame.ID)
	if err != nil {
		return item, err
	}
	favorites, err := h.repo.GetFavorites(ctx, frame.ID)
	if err != nil {
		return item, err
	}
	favored := make(map[string]bool, len(favorites))
	for _, key := range favorites {
		favored[key] = true
	}
	ledgerVersions := entity.LedgerVersions(versions)
	for pos, key := range frame.Outputs {
		version, _ := ledger.VersionOf(ledgerVersions, pos)
		item.Items = append(item.Items, entity.OutputItem{
			Key:      key,
			URL:      h.readableURL(ctx, key),
			Version:  version,
			Favorite: favored[key],
		})
	}
	return item, nil
}

// readUploads 读取 multipart 表单中的图片文件
func readUploads(c *gin.Context, field string) ([]uploadedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("no files in field %q", field)
	}
	files := make([]uploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := readUpload(header)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func readUpload(header *multipart.FileHeader) (uploadedFile, error) {
	if header.Size > maxUploadBytes {
		return uploadedFile{}, fmt.Errorf("%s exceeds %d bytes", header.Filename, maxUploadBytes)
	}
	f, err := header.Open()
	if err != nil {
		return uploadedFile{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return uploadedFile{}, err
	}
	if len(data) == 0 {
		return uploadedFile{}, fmt.Errorf("%s is empty", header.Filename)
	}
	if len(data) > maxUploadBytes {
		return uploadedFile{}, fmt.Errorf("%s exceeds %d bytes", header.Filename, maxUploadBytes)
	}

	contentType := utils.DetectContentType(data)
	ext := utils.ExtensionFromMime(contentType)
	if ext == "" {
		return uploadedFile{}, fmt.Errorf("%s: %w %s", header.Filename, errUnsupportedMedia, contentType)
	}
	// 必须能被遮罩流程解码，否则帧会永远停留在 NEW
	if _, err := headmask.NewSource(data, ""); err != nil {
		return uploadedFile{}, fmt.Errorf("%s: %w %s: %v", header.Filename, errUnsupportedMedia, contentType, err)
	}
	return uploadedFile{
		Name:        header.Filename,
		Data:        data,
		ContentType: contentType,
		Ext:         ext,
	}, nil
}

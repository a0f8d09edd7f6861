package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"facechanger/internal/storage"
	"facechanger/internal/utils"
)

const outputPersistTimeout = 5 * time.Minute

// outputTarget 输出落盘时使用的命名信息
type outputTarget struct {
	skuCode      string
	frameID      int64
	generationID int64
	// defaultExt 来自 output_format 参数，响应里推断不出扩展名时使用
	defaultExt string
}

// persistOutputs 把推理服务返回的输出引用保存到对象存储并返回规范 key。
// 单个输出失败时跳过并记入 PartialOutputError，其余输出照常保存。
func (o *Orchestrator) persistOutputs(parentCtx context.Context, target outputTarget, refs []string) ([]string, *PartialOutputError) {
	ctx, cancel := context.WithTimeout(parentCtx, outputPersistTimeout)
	defer cancel()

	var (
		keys     []string
		failures []OutputFailure
	)
	for idx, ref := range refs {
		trimmed := strings.TrimSpace(ref)
		if trimmed == "" {
			continue
		}
		key, err := o.persistOutput(ctx, target, idx, trimmed)
		if err != nil {
			failures = append(failures, OutputFailure{Index: idx, Source: truncateRef(trimmed), Err: err})
			logrus.WithError(err).WithFields(logrus.Fields{
				"frame_id":      target.frameID,
				"generation_id": target.generationID,
				"index":         idx,
			}).Warn("output_persist_failed")
			continue
		}
		keys = append(keys, key)
	}

	if len(failures) > 0 {
		return keys, &PartialOutputError{Persisted: len(keys), Failures: failures}
	}
	return keys, nil
}

func (o *Orchestrator) persistOutput(ctx context.Context, target outputTarget, idx int, ref string) (string, error) {
	var (
		data        []byte
		contentType string
		ext         string
		err         error
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, contentType, ext, err = utils.DecodeImageDataURL(ref)
		if err != nil {
			return "", err
		}
	default:
		// 已经位于本存储中的输出只做规范化，不重复上传
		if key, ok := o.store.CanonicalKey(ref); ok {
			return key, nil
		}
		data, contentType, err = utils.Download(ctx, o.httpClient, ref)
		if err != nil {
			return "", err
		}
		ext = utils.ExtensionFromMime(contentType)
		if ext == "" {
			ext = utils.ExtensionFromURL(ref)
		}
	}
	if ext == "" || ext == "bin" {
		ext = target.defaultExt
	}

	key := storage.OutputKey(target.skuCode, target.frameID, target.generationID, idx, ext)
	stored, err := o.store.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload output: %w", err)
	}
	return stored, nil
}

// truncateRef keeps inline payloads out of error text.
func truncateRef(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		if i := strings.Index(ref, ","); i > 0 {
			return ref[:i] + ",..."
		}
	}
	if len(ref) > 256 {
		return ref[:256] + "..."
	}
	return ref
}

package entity

import (
	"sort"
	"time"
)

// SKU 进度状态
const (
	SkuProgressDone       = "DONE"
	SkuProgressFailed     = "FAILED"
	SkuProgressInProgress = "IN_PROGRESS"
)

// BatchDateLayout 批次日期格式
const BatchDateLayout = "2006-01-02"

// SkuFrameCounts 单个 SKU 的帧状态计数
type SkuFrameCounts struct {
	SkuID  int64
	Total  int
	Done   int
	Failed int
}

// Add 计入一帧
func (c *SkuFrameCounts) Add(status FrameStatus) {
	c.AddN(status, 1)
}

// AddN 计入 n 个相同状态的帧
func (c *SkuFrameCounts) AddN(status FrameStatus, n int) {
	c.Total += n
	switch status {
	case FrameStatusDone:
		c.Done += n
	case FrameStatusFailed:
		c.Failed += n
	}
}

// Status 全部 DONE 为完成，全部 FAILED 为失败，没有帧或其余情况为进行中
func (c SkuFrameCounts) Status() string {
	switch {
	case c.Total > 0 && c.Done == c.Total:
		return SkuProgressDone
	case c.Total > 0 && c.Failed == c.Total:
		return SkuProgressFailed
	default:
		return SkuProgressInProgress
	}
}

// SkuProgress 看板中单个 SKU 的进度
type SkuProgress struct {
	ID            int64     `json:"id"`
	Code          string    `json:"sku"`
	Brand         string    `json:"brand"`
	Frames        int       `json:"frames"`
	Done          int       `json:"done"`
	Failed        int       `json:"failed"`
	Status        string    `json:"status"`
	IsDone        bool      `json:"is_done"`
	HeadProfileID *int64    `json:"head_profile_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSkuProgress 组合 SKU 与其帧计数
func NewSkuProgress(sku DbSku, counts SkuFrameCounts) SkuProgress {
	return SkuProgress{
		ID:            sku.ID,
		Code:          sku.Code,
		Brand:         sku.Brand,
		Frames:        counts.Total,
		Done:          counts.Done,
		Failed:        counts.Failed,
		Status:        counts.Status(),
		IsDone:        sku.IsDone,
		HeadProfileID: sku.HeadProfileID,
		UpdatedAt:     sku.UpdatedAt,
	}
}

// SummarizeBatches 按 SKU 创建日期聚合，日期倒序，limit<=0 表示不限制
func SummarizeBatches(skus []DbSku, counts map[int64]SkuFrameCounts, limit int) []BatchSummary {
	buckets := make(map[string]*BatchSummary)
	for _, sku := range skus {
		date := sku.CreatedAt.UTC().Format(BatchDateLayout)
		b, ok := buckets[date]
		if !ok {
			b = &BatchSummary{Date: date}
			buckets[date] = b
		}
		b.Total++
		switch counts[sku.ID].Status() {
		case SkuProgressDone:
			b.Done++
		case SkuProgressFailed:
			b.Failed++
		default:
			b.InProgress++
		}
	}

	out := make([]BatchSummary, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

package entity

// OutputItem 帧的一个输出及其所在版本
type OutputItem struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Version  int    `json:"version"`
	Favorite bool   `json:"favorite"`
}

// FrameItem 返回给前端的帧，附带可访问地址
type FrameItem struct {
	DbFrame
	OriginalURL string       `json:"original_url"`
	MaskURL     string       `json:"mask_url,omitempty"`
	Items       []OutputItem `json:"items"`
}

type SkuListResponse struct {
	Skus []DbSku `json:"skus"`
	Meta *Meta   `json:"meta"`
}

type SkuDetailResponse struct {
	Sku    DbSku       `json:"sku"`
	Frames []FrameItem `json:"frames"`
}

type FrameDetailResponse struct {
	Frame FrameItem `json:"frame"`
}

type UploadFramesResponse struct {
	Frames []FrameItem `json:"frames"`
}

type GenerationListResponse struct {
	Generations []DbGeneration `json:"generations"`
}

type OutputVersionListResponse struct {
	Versions []DbOutputVersion `json:"versions"`
}

type FavoritesResponse struct {
	Keys []string `json:"keys"`
}

type HeadProfileListResponse struct {
	Profiles []DbHeadProfile `json:"profiles"`
}

type BatchListResponse struct {
	Batches []BatchSummary `json:"batches"`
}

type SkuProgressResponse struct {
	Skus []SkuProgress `json:"skus"`
}

type BrandListResponse struct {
	Brands []string `json:"brands"`
}

// EnqueueResponse 入队结果
type EnqueueResponse struct {
	Queued int `json:"queued"`
}

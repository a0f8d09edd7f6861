package entity

// SkuQuery 款号列表查询参数
type SkuQuery struct {
	Page     int    `form:"page" json:"page"`
	PageSize int    `form:"page_size" json:"page_size"`
	Brand    string `form:"brand" json:"brand"`
	// Date 按创建日期（UTC，YYYY-MM-DD）过滤
	Date string `form:"date" json:"date"`
}

// Normalize 补齐分页默认值
func (q *SkuQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.PageSize > 200 {
		q.PageSize = 200
	}
}

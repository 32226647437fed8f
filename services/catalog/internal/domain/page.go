package domain

import "math"

// Page is one window of a larger result. Page is zero-based.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalPages int   `json:"total_pages"`
}

func NewPage[T any](items []T, total int64, page, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{Items: items, Total: total, Page: page, Size: size, TotalPages: pages}
}

// Window normalises a page request. page is clamped to [0, MaxInt/size] so
// the offset cannot overflow. size falls back to def when unset and is capped
// at maxSize.
func Window(page, size, def, maxSize int) (offset, limit, p, s int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = def
	}
	if size > maxSize {
		size = maxSize
	}
	page = min(page, math.MaxInt/size)
	return page * size, size, page, size
}

// Package paginationutil slices tool result lists into pages.
package paginationutil

// PaginationResult holds pagination metadata.
type PaginationResult struct {
	TotalCount int
	Truncated  bool
}

// ApplyPagination returns the requested page and metadata. Offsets and
// limits outside the slice are clamped.
func ApplyPagination[T any](items []T, offset, limit int) ([]T, PaginationResult) {
	total := len(items)
	start := min(max(offset, 0), total)
	end := min(start+max(limit, 0), total)

	return items[start:end], PaginationResult{
		TotalCount: total,
		Truncated:  end < total,
	}
}

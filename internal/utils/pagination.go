// Package utils holds small helpers shared by the HTTP layer.
package utils

import "strconv"

// Page bounds shared by paginated list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request with a bounded size.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads raw page and page_size query values. Missing or
// unparseable values take the defaults (page 1, DefaultPageSize); parsed
// values are clamped to Number >= 1 and 1 <= Size <= MaxPageSize.
func ParsePage(rawPage, rawSize string) Page {
	return Page{
		Number: max(intOr(rawPage, 1), 1),
		Size:   min(max(intOr(rawSize, DefaultPageSize), 1), MaxPageSize),
	}
}

// Offset is the number of items before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Pages returns how many pages of p.Size are needed for total items.
func (p Page) Pages(total int64) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	size := int64(p.Size)
	return int((total + size - 1) / size)
}

// HasNext reports whether another page follows p.
func (p Page) HasNext(total int64) bool { return p.Number < p.Pages(total) }

func intOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

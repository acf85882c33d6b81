// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows shown in paged lists.
const PageSize = 50

// Window is a 1-based page translated into Mongo skip/limit values.
type Window struct {
	Page   int
	Size   int
	Offset int64
	Limit  int64
}

// ParsePage extracts the "page" query parameter (1-based).
// Returns 1 if not present or invalid.
func ParsePage(r *http.Request) int {
	s := query.Get(r, "page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// For returns the window for page using size rows per page. A size below 1
// falls back to PageSize.
func For(page, size int) Window {
	if size < 1 {
		size = PageSize
	}
	if page < 1 {
		page = 1
	}
	return Window{
		Page:   page,
		Size:   size,
		Offset: int64((page - 1) * size),
		Limit:  int64(size),
	}
}

// FromRequest is For(ParsePage(r), size).
func FromRequest(r *http.Request, size int) Window {
	return For(ParsePage(r), size)
}

// TotalPages returns the number of pages needed for total rows. An empty
// result still has one page.
func (w Window) TotalPages(total int64) int {
	if total <= 0 {
		return 1
	}
	return int((total + int64(w.Size) - 1) / int64(w.Size))
}

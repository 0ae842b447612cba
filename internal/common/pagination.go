package common

import (
	"net/http"
	"strconv"
)

// MaxPerPage caps list page sizes.
const MaxPerPage = 200

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination extracts page and limit parameters from query values.
func ParsePagination(r *http.Request, defaultPerPage int) Pagination {
	p := Pagination{Page: 1, PerPage: defaultPerPage}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.PerPage = v
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Bounds records total and returns the [start, end) window of the page.
func (p *Pagination) Bounds(total int) (start, end int) {
	p.TotalItems = total
	start = (p.Page - 1) * p.PerPage
	if start > total {
		start = total
	}
	end = start + p.PerPage
	if end > total {
		end = total
	}
	return start, end
}

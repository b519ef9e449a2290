package common

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives the page count from the total.
func NewPagination(page, perPage int, total int64) Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{Page: page, PerPage: perPage, TotalItems: int(total), TotalPages: pages}
}

// ParsePagination extracts the page and limit query parameters. Non-positive values fall back to
// page 1 and defaultPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	q := r.URL.Query()
	return positiveInt(q, "page", 1), positiveInt(q, "limit", defaultPerPage)
}

func positiveInt(q url.Values, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(q.Get(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

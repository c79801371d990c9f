package middleware

import (
	"net/http"
	"strconv"
)

// ValidateLimit validates pagination page size
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage clamps the page number to 1 or more.
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

// Pagination reads ?page= and ?page_size= from the query string; bad or
// missing values fall back to the defaults.
func Pagination(r *http.Request) (page, pageSize int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	pageSize, _ = strconv.Atoi(q.Get("page_size"))
	return ValidatePage(page), ValidateLimit(pageSize)
}

package api

import (
	"math"
	"net/url"
	"strconv"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
)

// List pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListQuery is a parsed chapter list request.
type ListQuery struct {
	Filter chapters.Filter
	Page   int
	Limit  int
}

// ParseListQuery reads filters and pagination from the query string.
// Invalid numbers or booleans yield a 400 *Error.
func ParseListQuery(v url.Values) (ListQuery, error) {
	q := ListQuery{Page: DefaultPage, Limit: DefaultLimit}

	if s := v.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return ListQuery{}, badRequest("page must be a positive integer")
		}
		q.Page = n
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxLimit {
			return ListQuery{}, badRequest("limit must be an integer between 1 and " + strconv.Itoa(MaxLimit))
		}
		q.Limit = n
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return ListQuery{}, badRequest("page is out of range")
	}
	if s := v.Get("isWeakChapter"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return ListQuery{}, badRequest("isWeakChapter must be true or false")
		}
		q.Filter.IsWeakChapter = &b
	}

	q.Filter.Class = optional(v, "class")
	q.Filter.Unit = optional(v, "unit")
	q.Filter.Status = optional(v, "status")
	q.Filter.Subject = optional(v, "subject")

	return q, nil
}

func optional(v url.Values, key string) *string {
	s := v.Get(key)
	if s == "" {
		return nil
	}
	return &s
}

// Skip returns the number of records before the requested page.
func (q ListQuery) Skip() int {
	return (q.Page - 1) * q.Limit
}

// CacheKey identifies the view. Only parameters that differ from the
// defaults are included, so the default listing is cache.ChaptersKey.
func (q ListQuery) CacheKey() cache.CacheKey {
	params := url.Values{}
	f := q.Filter
	for key, val := range map[string]*string{
		"class":   f.Class,
		"unit":    f.Unit,
		"status":  f.Status,
		"subject": f.Subject,
	} {
		if val != nil {
			params.Set(key, *val)
		}
	}
	if f.IsWeakChapter != nil {
		params.Set("isWeakChapter", strconv.FormatBool(*f.IsWeakChapter))
	}
	if q.Page != DefaultPage {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit != DefaultLimit {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return cache.CacheKey{Resource: cache.ChaptersKey, Params: params}
}

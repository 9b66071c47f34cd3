package cache

import (
	"net/url"
	"time"
)

const (
	// ChaptersKey holds the default chapter listing.
	ChaptersKey = "chapters"

	// ChaptersTTL is the expiry of a populated listing.
	ChaptersTTL = 3600 * time.Second
)

// CacheKey identifies a cached resource view.
type CacheKey struct {
	// Resource is the logical resource name (e.g., "chapters")
	Resource string

	// Params are the non-default query parameters of the view
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: resource?param1=val1&param2=val2
//
// Params are query-escaped and sorted by name, so distinct views never share
// a key. A key without params is the bare resource name, so the default
// listing maps to ChaptersKey.
//
// Example:
//
//	chapters?class=Class+11&page=2
func (k CacheKey) String() string {
	if len(k.Params) == 0 {
		return k.Resource
	}
	return k.Resource + "?" + k.Params.Encode()
}

// Cacheable reports whether the view is the resource's default view, the
// only one the cache stores.
func (k CacheKey) Cacheable() bool {
	return len(k.Params) == 0
}

package cache

import "errors"

// ErrCacheUnavailable is returned for a cache-only read that finds no fresh
// entry. It is a cache-layer condition, never a domain error.
var ErrCacheUnavailable = errors.New("cache unavailable: no fresh entry")

package dedup

import "errors"

var (
	ErrEmptyKey   = errors.New("dedup: empty key")
	ErrInvalidTTL = errors.New("dedup: ttl must be positive")
)

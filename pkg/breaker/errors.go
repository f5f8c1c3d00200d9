package breaker

import "errors"

// ErrOpen is returned when the breaker rejects a call without invoking it.
var ErrOpen = errors.New("breaker: circuit open")

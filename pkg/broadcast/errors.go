package broadcast

import "errors"

var (
	ErrClosed         = errors.New("broadcast: broadcaster is closed")
	ErrEmptyChannel   = errors.New("broadcast: redis channel name is required")
	ErrNilClient      = errors.New("broadcast: redis client is required")
	ErrEncodeMessage  = errors.New("broadcast: failed to encode message")
	ErrPublishMessage = errors.New("broadcast: failed to publish message")
)

package queue

import "errors"

var (
	ErrHandlerNil     = errors.New("queue: handler cannot be nil")
	ErrEmptyTaskID    = errors.New("queue: task id cannot be empty")
	ErrDuplicateTask  = errors.New("queue: task with this id is already pending")
	ErrStopped        = errors.New("queue: stopped")
	ErrAlreadyStarted = errors.New("queue: already started")
	ErrNotStarted     = errors.New("queue: not started")
)

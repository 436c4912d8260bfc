package scheduler

import "errors"

var (
	ErrInvalidTimezone = errors.New("scheduler: invalid timezone")
	ErrInvalidSpec     = errors.New("scheduler: invalid cron spec")
	ErrDuplicateJob    = errors.New("scheduler: job name already registered")
	ErrJobNotFound     = errors.New("scheduler: job not found")
)

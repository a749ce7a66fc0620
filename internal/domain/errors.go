package domain

import "errors"

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrRunNotFound    = errors.New("run not found")
)

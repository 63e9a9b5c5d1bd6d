package domain

import "errors"

var (
	ErrEmptyPool       = errors.New("no leasable accounts in pool")
	ErrAccountNotFound = errors.New("account not found")
)

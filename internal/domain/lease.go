package domain

import "time"

// Lease is a transient claim on one account by one in-flight session.
// It is owned by the session that acquired it and must be released on
// every exit path, terminal or not.
type Lease struct {
	Account    Account
	AcquiredAt time.Time
}

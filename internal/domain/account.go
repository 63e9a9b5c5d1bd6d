package domain

import "time"

const (
	// DefaultFailureThreshold is the failure count at which an account
	// stops being leasable.
	DefaultFailureThreshold = 3

	// UnusablePenalty is the failure delta applied when a session finds
	// the account itself broken, retiring it from future runs.
	UnusablePenalty = 100
)

type Account struct {
	Email     string
	Password  string
	Failures  int
	Usages    int
	CreatedAt time.Time
}

func (a Account) Leasable(threshold int) bool {
	return a.Failures < threshold
}

package domain

// SessionSpec describes one end-to-end probe task before an account is
// bound to it.
type SessionSpec struct {
	Query    string
	Customer string
}

// Session is one end-to-end probe task: a spec, the leased account
// driving it, and the attempts made so far. Attempts are append-only.
type Session struct {
	Spec     SessionSpec
	Lease    Lease
	Attempts []AttemptResult
}

func (s *Session) RecordAttempt(result AttemptResult) {
	s.Attempts = append(s.Attempts, result)
}

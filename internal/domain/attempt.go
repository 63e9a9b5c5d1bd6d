package domain

type AttemptKind string

const (
	AttemptSuccess         AttemptKind = "success"
	AttemptRecoverable     AttemptKind = "recoverable_failure"
	AttemptUnusableAccount AttemptKind = "unusable_account"
)

// AttemptResult classifies one pass through the session executor.
// RawOutput is set only for successes; Reason only for failures.
type AttemptResult struct {
	Kind      AttemptKind
	RawOutput string
	Reason    string
}

func AttemptSucceeded(rawOutput string) AttemptResult {
	return AttemptResult{Kind: AttemptSuccess, RawOutput: rawOutput}
}

func AttemptRecoverableFailure(reason string) AttemptResult {
	return AttemptResult{Kind: AttemptRecoverable, Reason: reason}
}

func AttemptUnusable(reason string) AttemptResult {
	return AttemptResult{Kind: AttemptUnusableAccount, Reason: reason}
}

package model

// ItemKind identifies which kind of plan item an outcome refers to.
type ItemKind string

const (
	// ItemCreate is a rule creation.
	ItemCreate ItemKind = "create"
	// ItemUpdate is a rule update.
	ItemUpdate ItemKind = "update"
	// ItemDelete is a rule deletion.
	ItemDelete ItemKind = "delete"
	// ItemProfile is the scoring profile update.
	ItemProfile ItemKind = "profile"
)

// ItemOutcome records one plan item that was applied successfully.
type ItemOutcome struct {
	Kind       ItemKind
	ExternalID string
	Name       string
}

// ItemFailure records one plan item that failed, with the error kind for the
// caller's taxonomy and the underlying error text.
type ItemFailure struct {
	Kind       ItemKind
	ExternalID string
	Name       string
	ErrorKind  string
	Err        string
}

// ApplyResult aggregates per-item outcomes of one apply pass. A multi-item
// batch never produces a single opaque failure: items succeed or fail
// independently and both lists are returned.
type ApplyResult struct {
	Succeeded      []ItemOutcome
	Failed         []ItemFailure
	ProfileApplied bool
	Canceled       bool
}

// AnySucceeded reports whether at least one item applied.
func (r *ApplyResult) AnySucceeded() bool {
	return len(r.Succeeded) > 0 || r.ProfileApplied
}

// Complete reports whether every item in the batch applied.
func (r *ApplyResult) Complete() bool {
	return len(r.Failed) == 0 && !r.Canceled
}

// Package reconcile decides whether a freshly fetched document list should
// replace the committed one, suppressing commits when nothing tracked
// changed so that polling does not cause redundant re-renders.
package reconcile

import "github.com/valter-silva-au/riskdesk/pkg/models"

// Kind is the outcome of a reconciliation pass.
type Kind int

const (
	Suppress Kind = iota
	Commit
)

func (k Kind) String() string {
	if k == Commit {
		return "commit"
	}
	return "suppress"
}

// Reason explains why a Decision was reached.
type Reason string

const (
	ReasonFirstLoad     Reason = "first_load"
	ReasonCountChanged  Reason = "count_changed"
	ReasonFieldsChanged Reason = "fields_changed"
	ReasonUnchanged     Reason = "unchanged"
)

// Decision is the result of Decide.
type Decision struct {
	Kind   Kind
	Reason Reason
	// Deferred is set for commits found by field comparison; those are
	// batched into the next frame instead of applied synchronously.
	Deferred bool
	// ChangedID is the first document that triggered a field change.
	ChangedID int
}

// Committed reports whether the decision replaces the list.
func (d Decision) Committed() bool { return d.Kind == Commit }

// Decide compares next against the previously committed prev. Only status,
// progress, name and type are tracked; other fields never force a commit on
// their own.
func Decide(prev, next []models.Document) Decision {
	if len(prev) == 0 {
		return Decision{Kind: Commit, Reason: ReasonFirstLoad}
	}
	if len(prev) != len(next) {
		return Decision{Kind: Commit, Reason: ReasonCountChanged}
	}

	byID := make(map[int]models.Document, len(prev))
	for _, d := range prev {
		byID[d.ID] = d
	}
	for _, d := range next {
		old, ok := byID[d.ID]
		if !ok || trackedChanged(old, d) {
			return Decision{Kind: Commit, Reason: ReasonFieldsChanged, Deferred: true, ChangedID: d.ID}
		}
	}
	return Decision{Kind: Suppress, Reason: ReasonUnchanged}
}

func trackedChanged(a, b models.Document) bool {
	return a.Status != b.Status ||
		a.Progress != b.Progress ||
		a.Name != b.Name ||
		a.Type != b.Type
}

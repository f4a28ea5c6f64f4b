package actions

import (
	"context"

	"github.com/valter-silva-au/riskdesk/internal/reconcile"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Action is a mutating operation with optional optimistic state handling.
// Apply and Rollback may be nil for actions that only call the backend.
type Action struct {
	Name     string
	Apply    func(docs []models.Document) []models.Document
	Commit   func(ctx context.Context) error
	Rollback func(current, prior []models.Document) []models.Document
}

// Executor runs Actions against a reconcile.Store.
type Executor struct {
	store *reconcile.Store
}

// NewExecutor creates an Executor for store.
func NewExecutor(store *reconcile.Store) *Executor {
	return &Executor{store: store}
}

// Run applies the optimistic change, commits it to the backend and rolls the
// list back if the commit fails. The commit error is returned unchanged.
func (e *Executor) Run(ctx context.Context, a Action) error {
	prior := e.store.Snapshot()
	if a.Apply != nil {
		e.store.Mutate(a.Apply)
	}

	err := a.Commit(ctx)
	if err != nil && a.Apply != nil && a.Rollback != nil {
		e.store.Mutate(func(current []models.Document) []models.Document {
			return a.Rollback(current, prior)
		})
	}
	return err
}

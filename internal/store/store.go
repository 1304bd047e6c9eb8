// Package store is the document-store adapter. All cross-record
// consistency in the service is delegated to Update, the optimistic
// transaction primitive: the callback sees a snapshot, its writes commit
// together or not at all, and the whole callback is retried from scratch
// on write conflict.
package store

import (
	"context"

	"confessly/pkg/domain"
)

// Tx exposes record operations inside a transaction. Reads observe the
// snapshot plus the transaction's own writes.
type Tx interface {
	GetUser(id string) (domain.User, bool, error)
	SaveUser(user domain.User) error

	GetConfession(id string) (domain.Confession, bool, error)
	SaveConfession(c domain.Confession) error

	GetReaction(confessionID, userID string) (domain.Reaction, bool, error)
	SaveReaction(r domain.Reaction) error
	DeleteReaction(confessionID, userID string) error

	HasReport(confessionID, userID string) (bool, error)
	SaveReport(r domain.Report) error

	HasUsedToken(token string) (bool, error)
	SaveUsedToken(t domain.UsedToken) error
}

// Store is the persistence boundary for the gates and the notifier.
type Store interface {
	// Update runs fn atomically with optimistic retry on conflict. An
	// error from fn aborts the transaction and is returned unchanged.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error

	// GetConfession is a plain read outside any transaction.
	GetConfession(ctx context.Context, id string) (domain.Confession, bool, error)

	// ListPushableUsers returns users holding a push-delivery address,
	// up to limit (0 means no limit). Candidate pool for notifiers.
	ListPushableUsers(ctx context.Context, limit int) ([]domain.User, error)
}

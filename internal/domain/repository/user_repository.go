// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers
// and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"flagfeed/internal/domain/entity"
)

// ErrUserDocNotFound is returned by point reads when no user document
// exists yet for a given uid. Callers fall back to a provider-derived
// default record in that case.
var ErrUserDocNotFound = errors.New("user document not found")

// Unsubscribe releases a live subscription. Implementations must be safe
// to call more than once and must stop delivering snapshots after the
// call returns.
type Unsubscribe func()

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a patch field to be stamped by the store at
// write time instead of carrying a client clock value.
var ServerTimestamp = serverTimestamp{}

// UserPatch is a partial merge-write against a user document. Only the
// fields present in the map are overwritten; everything else is left
// untouched. Values may be the ServerTimestamp sentinel.
type UserPatch map[string]any

// UserSnapshotFunc receives each live update of a user document. A nil
// user with a nil err means the document does not exist; a subscription
// error degrades the view rather than terminating the session.
type UserSnapshotFunc func(user *entity.User, err error)

// UserRepository wraps the document store operations on users/{userId}.
type UserRepository interface {
	// Get performs a one-shot point read of the user document.
	Get(ctx context.Context, uid string) (*entity.User, error)

	// Set merge-writes the given fields into the user document,
	// creating it if absent.
	Set(ctx context.Context, uid string, patch UserPatch) error

	// Watch attaches a live subscription to the user document and
	// invokes fn for every snapshot until the handle is released.
	Watch(ctx context.Context, uid string, fn UserSnapshotFunc) Unsubscribe

	// Delete removes the user document.
	Delete(ctx context.Context, uid string) error
}

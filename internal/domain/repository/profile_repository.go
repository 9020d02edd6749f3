package repository

import (
	"context"

	"flagfeed/internal/domain/entity"
)

// ProfilesSnapshotFunc receives each live update of the profiles
// collection, ordered newest first.
type ProfilesSnapshotFunc func(profiles []*entity.Profile, err error)

// CommentsSnapshotFunc receives each live update of a profile's comment
// sub-collection, ordered newest first.
type CommentsSnapshotFunc func(comments []*entity.Comment, err error)

// VotesSnapshotFunc receives each live update of a profile's vote
// sub-collection. Ordering is unspecified; callers aggregate.
type VotesSnapshotFunc func(votes []*entity.Vote, err error)

// ProfileRepository wraps the document store operations on
// profiles/{profileId} and its comments/votes sub-collections.
type ProfileRepository interface {
	// Create persists a new profile document with a store-assigned id
	// and returns that id.
	Create(ctx context.Context, profile *entity.Profile) (string, error)

	// WatchAll attaches a live subscription to the profiles collection
	// ordered by creation time descending.
	WatchAll(ctx context.Context, fn ProfilesSnapshotFunc) Unsubscribe

	// WatchByCreatorGender is the gender-scoped variant of WatchAll.
	// Nothing in the feed invokes it today; it exists as a documented
	// inactive capability.
	WatchByCreatorGender(ctx context.Context, gender entity.Gender, fn ProfilesSnapshotFunc) Unsubscribe

	// WatchComments attaches a live subscription to a profile's comment
	// sub-collection ordered by creation time descending.
	WatchComments(ctx context.Context, profileID string, fn CommentsSnapshotFunc) Unsubscribe

	// WatchVotes attaches a live subscription to a profile's vote
	// sub-collection.
	WatchVotes(ctx context.Context, profileID string, fn VotesSnapshotFunc) Unsubscribe

	// AddComment persists a new comment under the profile and returns
	// the store-assigned comment id.
	AddComment(ctx context.Context, profileID string, comment *entity.Comment) (string, error)

	// SetVote writes the voter's vote document under the profile. The
	// document key is the voter id, so repeated calls upsert in place.
	SetVote(ctx context.Context, profileID string, vote *entity.Vote) error

	// DeleteByOwner batch-deletes every profile document owned by the
	// given user, including comment and vote sub-collections. The store
	// has no automatic cascade; this is the explicit account-deletion path.
	DeleteByOwner(ctx context.Context, ownerID string) error
}

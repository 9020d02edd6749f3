package usecase

import (
	"context"

	"flagfeed/internal/domain/entity"
)

// FeedProfile is the merged externally visible view of a profile card:
// base document fields overlaid with the live comment and vote caches.
type FeedProfile struct {
	Profile    *entity.Profile
	Comments   []*entity.Comment
	GreenFlags int
	RedFlags   int
	// CommentCount falls back to the denormalized document counter
	// until the comment sub-collection has delivered a snapshot.
	CommentCount int
	// ViewerVote is the viewer's own vote kind, empty when none.
	ViewerVote entity.VoteKind
}

// AddProfileInput carries the fields of a new profile card.
type AddProfileInput struct {
	Name        string
	Age         int
	City        string
	Description string
	ImageURL    string
}

// FeedUsecase maintains per-viewer live merged feeds. A feed exists only
// while the viewer's account is approved; losing approval tears it down.
type FeedUsecase interface {
	// Profiles returns the current merged view for the viewer, newest
	// profile first.
	Profiles(ctx context.Context, viewerID string) ([]*FeedProfile, error)

	// Refresh is the cosmetic pull-to-refresh signal. It waits the
	// configured settle delay; the subscriptions are already live.
	Refresh(ctx context.Context, viewerID string) error

	// AddProfile creates a profile card with zeroed counters and
	// returns the new id.
	AddProfile(ctx context.Context, viewerID string, input AddProfileInput) (string, error)

	// AddComment writes a comment under the profile using the viewer's
	// display name.
	AddComment(ctx context.Context, viewerID, profileID, text string) error

	// Vote upserts the viewer's vote on the profile. An identical
	// consecutive kind is debounced against the local cache; the
	// store's upsert-by-voter-id is the correctness backstop.
	Vote(ctx context.Context, viewerID, profileID string, kind entity.VoteKind) error
}

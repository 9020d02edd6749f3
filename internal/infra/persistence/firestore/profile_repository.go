package firestore

import (
	"context"
	"log/slog"
	"time"

	"flagfeed/internal/domain/entity"
	"flagfeed/internal/domain/repository"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/iterator"
)

type profileRepository struct {
	client *firestore.Client
	logger *slog.Logger
}

// ProfileRepositoryParams holds dependencies for the profile repository.
type ProfileRepositoryParams struct {
	fx.In

	Client *firestore.Client
	Logger *slog.Logger
}

// NewProfileRepository creates a Firestore-backed profile repository.
func NewProfileRepository(params ProfileRepositoryParams) repository.ProfileRepository {
	return &profileRepository{
		client: params.Client,
		logger: params.Logger,
	}
}

func (r *profileRepository) profiles() *firestore.CollectionRef {
	return r.client.Collection(profilesCollection)
}

func (r *profileRepository) comments(profileID string) *firestore.CollectionRef {
	return r.profiles().Doc(profileID).Collection(commentsCollection)
}

func (r *profileRepository) votes(profileID string) *firestore.CollectionRef {
	return r.profiles().Doc(profileID).Collection(votesCollection)
}

func (r *profileRepository) Create(ctx context.Context, profile *entity.Profile) (string, error) {
	ref, _, err := r.profiles().Add(ctx, profile)
	if err != nil {
		return "", errors.Wrap(err, "failed to create profile document")
	}

	return ref.ID, nil
}

func (r *profileRepository) WatchAll(ctx context.Context, fn repository.ProfilesSnapshotFunc) repository.Unsubscribe {
	query := r.profiles().OrderBy("createdAt", firestore.Desc)

	return r.watchProfiles(ctx, query, fn)
}

func (r *profileRepository) WatchByCreatorGender(ctx context.Context, gender entity.Gender, fn repository.ProfilesSnapshotFunc) repository.Unsubscribe {
	query := r.profiles().
		Where("creatorGender", "==", string(gender)).
		OrderBy("createdAt", firestore.Desc)

	return r.watchProfiles(ctx, query, fn)
}

func (r *profileRepository) watchProfiles(ctx context.Context, query firestore.Query, fn repository.ProfilesSnapshotFunc) repository.Unsubscribe {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := query.Snapshots(watchCtx)

	go func() {
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if !isCanceled(err) {
					r.logger.Error("profiles snapshot stream failed", slog.Any("error", err))
					fn(nil, errors.Wrap(err, "profiles snapshot stream failed"))
				}

				return
			}

			profiles, err := decodeProfiles(snap)
			fn(profiles, err)
		}
	}()

	return func() { cancel() }
}

func decodeProfiles(snap *firestore.QuerySnapshot) ([]*entity.Profile, error) {
	profiles := make([]*entity.Profile, 0, snap.Size)

	for {
		doc, err := snap.Documents.Next()
		if errors.Is(err, iterator.Done) {
			return profiles, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read profiles snapshot")
		}

		profile := &entity.Profile{}
		if err := doc.DataTo(profile); err != nil {
			return nil, errors.Wrap(err, "failed to decode profile document")
		}
		profile.ID = doc.Ref.ID
		profiles = append(profiles, profile)
	}
}

func (r *profileRepository) WatchComments(ctx context.Context, profileID string, fn repository.CommentsSnapshotFunc) repository.Unsubscribe {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := r.comments(profileID).OrderBy("createdAt", firestore.Desc).Snapshots(watchCtx)

	go func() {
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if !isCanceled(err) {
					r.logger.Error("comments snapshot stream failed",
						slog.String("profileId", profileID),
						slog.Any("error", err))
					fn(nil, errors.Wrap(err, "comments snapshot stream failed"))
				}

				return
			}

			comments, err := decodeComments(snap)
			fn(comments, err)
		}
	}()

	return func() { cancel() }
}

func decodeComments(snap *firestore.QuerySnapshot) ([]*entity.Comment, error) {
	comments := make([]*entity.Comment, 0, snap.Size)

	for {
		doc, err := snap.Documents.Next()
		if errors.Is(err, iterator.Done) {
			return comments, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read comments snapshot")
		}

		comment := &entity.Comment{}
		if err := doc.DataTo(comment); err != nil {
			return nil, errors.Wrap(err, "failed to decode comment document")
		}
		comment.ID = doc.Ref.ID
		comments = append(comments, comment)
	}
}

func (r *profileRepository) WatchVotes(ctx context.Context, profileID string, fn repository.VotesSnapshotFunc) repository.Unsubscribe {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := r.votes(profileID).Snapshots(watchCtx)

	go func() {
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if !isCanceled(err) {
					r.logger.Error("votes snapshot stream failed",
						slog.String("profileId", profileID),
						slog.Any("error", err))
					fn(nil, errors.Wrap(err, "votes snapshot stream failed"))
				}

				return
			}

			votes, err := decodeVotes(snap)
			fn(votes, err)
		}
	}()

	return func() { cancel() }
}

func decodeVotes(snap *firestore.QuerySnapshot) ([]*entity.Vote, error) {
	votes := make([]*entity.Vote, 0, snap.Size)

	for {
		doc, err := snap.Documents.Next()
		if errors.Is(err, iterator.Done) {
			return votes, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read votes snapshot")
		}

		vote := &entity.Vote{}
		if err := doc.DataTo(vote); err != nil {
			return nil, errors.Wrap(err, "failed to decode vote document")
		}
		votes = append(votes, vote)
	}
}

func (r *profileRepository) AddComment(ctx context.Context, profileID string, comment *entity.Comment) (string, error) {
	// The createdAt tag turns into a server-timestamp transform only
	// when the field is zero; a client clock value would be dropped
	// from the document entirely and exclude it from the createdAt
	// ordering of WatchComments.
	record := *comment
	record.CreatedAt = time.Time{}

	ref, _, err := r.comments(profileID).Add(ctx, &record)
	if err != nil {
		return "", errors.Wrap(err, "failed to create comment document")
	}

	return ref.ID, nil
}

func (r *profileRepository) SetVote(ctx context.Context, profileID string, vote *entity.Vote) error {
	// Same zeroing as AddComment: both timestamps are store-stamped.
	record := *vote
	record.CreatedAt = time.Time{}
	record.UpdatedAt = time.Time{}

	if _, err := r.votes(profileID).Doc(vote.VoterID).Set(ctx, &record); err != nil {
		return errors.Wrap(err, "failed to write vote document")
	}

	return nil
}

// DeleteByOwner removes every profile owned by the user together with
// its comment and vote sub-collections. The store does not cascade
// sub-collection deletes, so each sub-document is enqueued explicitly.
func (r *profileRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	docs, err := r.profiles().Where("uploaderUserId", "==", ownerID).Documents(ctx).GetAll()
	if err != nil {
		return errors.Wrap(err, "failed to list profiles for deletion")
	}
	if len(docs) == 0 {
		return nil
	}

	writer := r.client.BulkWriter(ctx)
	for _, doc := range docs {
		for _, sub := range []*firestore.CollectionRef{
			doc.Ref.Collection(commentsCollection),
			doc.Ref.Collection(votesCollection),
		} {
			subDocs, err := sub.Documents(ctx).GetAll()
			if err != nil {
				return errors.Wrap(err, "failed to list sub-collection for deletion")
			}
			for _, subDoc := range subDocs {
				if _, err := writer.Delete(subDoc.Ref); err != nil {
					return errors.Wrap(err, "failed to enqueue sub-document delete")
				}
			}
		}

		if _, err := writer.Delete(doc.Ref); err != nil {
			return errors.Wrap(err, "failed to enqueue profile delete")
		}
	}
	writer.End()

	return nil
}

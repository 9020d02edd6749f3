package firestore

import (
	"context"
	"log/slog"

	"flagfeed/internal/domain/entity"
	"flagfeed/internal/domain/repository"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

type userRepository struct {
	client *firestore.Client
	logger *slog.Logger
}

// UserRepositoryParams holds dependencies for the user repository.
type UserRepositoryParams struct {
	fx.In

	Client *firestore.Client
	Logger *slog.Logger
}

// NewUserRepository creates a Firestore-backed user repository.
func NewUserRepository(params UserRepositoryParams) repository.UserRepository {
	return &userRepository{
		client: params.Client,
		logger: params.Logger,
	}
}

func (r *userRepository) doc(userID string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(userID)
}

func (r *userRepository) Get(ctx context.Context, userID string) (*entity.User, error) {
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user document")
	}
	if !snap.Exists() {
		return nil, repository.ErrUserDocNotFound
	}

	user := &entity.User{}
	if err := snap.DataTo(user); err != nil {
		return nil, errors.Wrap(err, "failed to decode user document")
	}
	user.ID = snap.Ref.ID

	return user, nil
}

func (r *userRepository) Set(ctx context.Context, userID string, patch repository.UserPatch) error {
	data := make(map[string]any, len(patch))
	for key, value := range patch {
		if value == repository.ServerTimestamp {
			data[key] = firestore.ServerTimestamp

			continue
		}
		data[key] = value
	}

	if _, err := r.doc(userID).Set(ctx, data, firestore.MergeAll); err != nil {
		return errors.Wrap(err, "failed to write user document")
	}

	return nil
}

// Watch streams the user document to fn until the returned Unsubscribe
// is called. A snapshot for a document that does not exist yet is
// delivered as nil, matching the pending window between identity signup
// and the first profile write.
func (r *userRepository) Watch(ctx context.Context, userID string, fn repository.UserSnapshotFunc) repository.Unsubscribe {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := r.doc(userID).Snapshots(watchCtx)

	go func() {
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if !isCanceled(err) {
					r.logger.Error("user snapshot stream failed",
						slog.String("userId", userID),
						slog.Any("error", err))
					fn(nil, errors.Wrap(err, "user snapshot stream failed"))
				}

				return
			}

			if !snap.Exists() {
				fn(nil, nil)

				continue
			}

			user := &entity.User{}
			if err := snap.DataTo(user); err != nil {
				fn(nil, errors.Wrap(err, "failed to decode user snapshot"))

				continue
			}
			user.ID = snap.Ref.ID
			fn(user, nil)
		}
	}()

	return func() { cancel() }
}

func (r *userRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.doc(userID).Delete(ctx); err != nil {
		return errors.Wrap(err, "failed to delete user document")
	}

	return nil
}

// Package firestore implements the document store repositories on top
// of the hosted Firestore database.
package firestore

import (
	"context"
	"log/slog"

	"flagfeed/config"
	"flagfeed/internal/domain/lifecycle"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection    = "users"
	profilesCollection = "profiles"
	commentsCollection = "comments"
	votesCollection    = "votes"
)

// ClientParams holds dependencies for the Firestore client, injected by Fx.
type ClientParams struct {
	fx.In
	fx.Lifecycle

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// New creates the process-wide Firestore client. The client is
// constructed once at startup and injected into each repository; there
// are no module-level singletons.
func New(params ClientParams) (*firestore.Client, error) {
	cfg := params.Config.Firebase
	if cfg == nil || cfg.ProjectID == "" {
		return nil, errors.New("firebase project configuration is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	client, err := firestore.NewClient(params.Ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create firestore client")
	}

	params.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
			defer cancel()
			params.Logger.Info("Closing Firestore client")

			return errors.WithStack(client.Close())
		},
	})

	return client, nil
}

// isCanceled reports whether a snapshot iterator terminated because its
// subscription was released rather than because the store failed.
func isCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}

	return status.Code(err) == codes.Canceled
}

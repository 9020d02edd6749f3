// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"

	"flagfeed/internal/domain/entity"
)

// RegisterInput carries the registration form fields. The form layer has
// already validated them; the usecase re-checks only the gender,
// matching the defensive double-check in the sign-up flow.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	Location    string
	Phone       string
	DateOfBirth string // "2006-01-02"
	Gender      entity.Gender
	SelfieURL   string
}

// SessionState is the snapshot handed back after an auth operation.
type SessionState struct {
	User    *entity.User
	IDToken string
}

// StatusObserverFunc is invoked on every live status transition of a
// signed-in user's document. The feed activates and deactivates on
// these.
type StatusObserverFunc func(uid string, user *entity.User)

// SessionUsecase is the single authoritative view of who is signed in
// and what their approval state is.
type SessionUsecase interface {
	// Register creates an identity account plus the pending user
	// document and opens a live session.
	Register(ctx context.Context, input RegisterInput) (*SessionState, error)

	// Login authenticates email/password credentials, point-reads the
	// user document and opens a live session.
	Login(ctx context.Context, email, password string) (*SessionState, error)

	// LoginWithIDToken authenticates a third-party credential, merging
	// the provider account into the user document on first sign-in.
	LoginWithIDToken(ctx context.Context, idToken string) (*SessionState, error)

	// Current returns the live view of the signed-in user, attaching
	// the document subscription if none is active yet.
	Current(ctx context.Context, uid string) (*entity.User, error)

	// Logout clears local session state and releases the document
	// subscription. revokeProvider additionally revokes the provider
	// session; the default path is local-only.
	Logout(ctx context.Context, uid string, revokeProvider bool) error

	// UpdateGender merge-writes the gender field.
	UpdateGender(ctx context.Context, uid string, gender entity.Gender) error

	// UpdatePhone sanitizes and merge-writes the phone field.
	UpdatePhone(ctx context.Context, uid, phone string) error

	// UpdateDateOfBirth parses and merge-writes the date of birth.
	UpdateDateOfBirth(ctx context.Context, uid, dateOfBirth string) error

	// UpdateAuthMethod merge-writes the auth method field.
	UpdateAuthMethod(ctx context.Context, uid string, method entity.AuthMethod) error

	// DeleteAccount removes the identity account, the user document and
	// every owned profile document.
	DeleteAccount(ctx context.Context, uid string) error

	// RegisterStatusObserver adds a callback for live status
	// transitions. Registration happens once, at wiring time.
	RegisterStatusObserver(fn StatusObserverFunc)
}

// Package service defines interfaces for core, stateless domain logic
// and for the hosted collaborators the application delegates to.
package service

import "context"

// Account represents the identity provider's view of a signed-in user.
type Account struct {
	UID           string // Opaque stable id issued by the provider
	Email         string // Primary email, lowercased by the provider
	DisplayName   string // Display name, may be empty
	PhotoURL      string // Avatar URL from a third-party provider, may be empty
	IDToken       string // Session token to be presented on subsequent requests
	RefreshToken  string // Token to renew the session, may be empty
	EmailVerified bool   // Whether the provider verified the email
}

// IdentityProvider wraps the hosted authentication service. All session
// issuance and verification is delegated here; the application never
// stores credentials itself.
type IdentityProvider interface {
	// SignUp creates a new email/password account and opens a session.
	SignUp(ctx context.Context, email, password string) (*Account, error)

	// SignIn authenticates an existing email/password account.
	SignIn(ctx context.Context, email, password string) (*Account, error)

	// SignInWithIDToken authenticates with a third-party credential
	// (e.g. a Google ID token) and returns the provider account,
	// creating it on first sign-in.
	SignInWithIDToken(ctx context.Context, idToken string) (*Account, error)

	// VerifyToken validates a session token and returns the uid it
	// belongs to. This is the "observe current session" operation used
	// by the delivery layer.
	VerifyToken(ctx context.Context, idToken string) (string, error)

	// UpdateDisplayName sets the display name on the provider account.
	UpdateDisplayName(ctx context.Context, uid, name string) error

	// SignOut revokes the account's active sessions at the provider.
	SignOut(ctx context.Context, uid string) error

	// DeleteAccount permanently removes the provider account.
	DeleteAccount(ctx context.Context, uid string) error
}

// Package firebase implements the identity provider on the hosted
// Firebase Authentication service. Credential flows (password sign-up
// and sign-in, federated assertion exchange) go through the Identity
// Toolkit REST API with the project's web API key; privileged account
// management (token verification, profile updates, revocation,
// deletion) goes through the Admin SDK.
package firebase

import (
	"context"
	"log/slog"
	"strings"

	"flagfeed/config"
	domainerrors "flagfeed/internal/domain/errors"
	"flagfeed/internal/domain/service"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

type identityProvider struct {
	admin   *auth.Client
	toolkit *identitytoolkit.RelyingpartyService
	logger  *slog.Logger
}

// IdentityParams holds dependencies for the Firebase identity provider.
type IdentityParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewIdentityProvider creates an identity provider backed by Firebase
// Authentication.
func NewIdentityProvider(params IdentityParams) (service.IdentityProvider, error) {
	cfg := params.Config.Firebase
	if cfg == nil || cfg.ProjectID == "" || cfg.WebAPIKey == "" {
		return nil, errors.New("firebase project id and web api key are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(params.Ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create firebase app")
	}

	admin, err := app.Auth(params.Ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create firebase auth client")
	}

	toolkitService, err := identitytoolkit.NewService(params.Ctx, option.WithAPIKey(cfg.WebAPIKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create identity toolkit client")
	}

	return &identityProvider{
		admin:   admin,
		toolkit: toolkitService.Relyingparty,
		logger:  params.Logger,
	}, nil
}

func (p *identityProvider) SignUp(ctx context.Context, email, password string) (*service.Account, error) {
	resp, err := p.toolkit.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapToolkitError(err)
	}

	p.logger.Info("Identity account created", slog.String("uid", resp.LocalId))

	return &service.Account{
		UID:          resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

func (p *identityProvider) SignIn(ctx context.Context, email, password string) (*service.Account, error) {
	resp, err := p.toolkit.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapToolkitError(err)
	}

	return &service.Account{
		UID:          resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		PhotoURL:     resp.PhotoUrl,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

func (p *identityProvider) SignInWithIDToken(ctx context.Context, idToken string) (*service.Account, error) {
	resp, err := p.toolkit.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:            "id_token=" + idToken + "&providerId=google.com",
		RequestUri:          "http://localhost",
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapToolkitError(err)
	}

	return &service.Account{
		UID:           resp.LocalId,
		Email:         resp.Email,
		DisplayName:   resp.DisplayName,
		PhotoURL:      resp.PhotoUrl,
		IDToken:       resp.IdToken,
		RefreshToken:  resp.RefreshToken,
		EmailVerified: resp.EmailVerified,
	}, nil
}

func (p *identityProvider) VerifyToken(ctx context.Context, idToken string) (string, error) {
	token, err := p.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", domainerrors.ErrSessionNotFound.WrapMessage(err.Error())
	}

	return token.UID, nil
}

func (p *identityProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	update := (&auth.UserToUpdate{}).DisplayName(name)
	if _, err := p.admin.UpdateUser(ctx, uid, update); err != nil {
		return errors.Wrap(err, "failed to update display name")
	}

	return nil
}

func (p *identityProvider) SignOut(ctx context.Context, uid string) error {
	if err := p.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return errors.Wrap(err, "failed to revoke refresh tokens")
	}

	return nil
}

func (p *identityProvider) DeleteAccount(ctx context.Context, uid string) error {
	if err := p.admin.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return domainerrors.ErrUserNotFound
		}

		return errors.Wrap(err, "failed to delete identity account")
	}

	return nil
}

// mapToolkitError translates Identity Toolkit error codes into the
// user-facing domain errors the form layer switches on.
func mapToolkitError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return domainerrors.ErrAuthFailed.WrapMessage(err.Error())
	}

	code := apiErr.Message
	switch {
	case strings.HasPrefix(code, "EMAIL_EXISTS"):
		return domainerrors.ErrEmailAlreadyInUse
	case strings.HasPrefix(code, "WEAK_PASSWORD"):
		return domainerrors.ErrWeakPassword
	case strings.HasPrefix(code, "EMAIL_NOT_FOUND"):
		return domainerrors.ErrUserNotFound
	case strings.HasPrefix(code, "INVALID_PASSWORD"):
		return domainerrors.ErrWrongPassword
	case strings.HasPrefix(code, "INVALID_LOGIN_CREDENTIALS"):
		return domainerrors.ErrInvalidCredential
	default:
		return domainerrors.ErrAuthFailed.WithDetails(code)
	}
}

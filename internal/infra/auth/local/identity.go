// Package local implements an in-process identity provider for
// development and tests. Accounts live in memory, passwords are hashed
// with bcrypt, and session tokens are HS256 JWTs. A restart forgets
// every account; nothing here persists.
package local

import (
	"context"
	"strings"
	"sync"
	"time"

	"flagfeed/config"
	domainerrors "flagfeed/internal/domain/errors"
	"flagfeed/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

type account struct {
	uid          string
	email        string
	displayName  string
	passwordHash string
	// tokenEpoch invalidates previously issued tokens on sign-out.
	tokenEpoch int64
}

type identityProvider struct {
	mu         sync.RWMutex
	byEmail    map[string]*account
	byUID      map[string]*account
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewIdentityProvider creates the in-memory identity provider.
func NewIdentityProvider(cfg *config.Config) (service.IdentityProvider, error) {
	identity := cfg.Identity
	if identity == nil || identity.LocalSecret == "" {
		return nil, errors.New("local identity secret must be provided")
	}

	ttl := identity.LocalTokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	cost := identity.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &identityProvider{
		byEmail:    make(map[string]*account),
		byUID:      make(map[string]*account),
		secret:     []byte(identity.LocalSecret),
		tokenTTL:   ttl,
		bcryptCost: cost,
	}, nil
}

func (p *identityProvider) SignUp(_ context.Context, email, password string) (*service.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < 6 {
		return nil, domainerrors.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return nil, domainerrors.ErrEmailAlreadyInUse
	}

	acct := &account{
		uid:          uuid.NewString(),
		email:        email,
		passwordHash: string(hash),
	}
	p.byEmail[email] = acct
	p.byUID[acct.uid] = acct

	token, err := p.issueToken(acct)
	if err != nil {
		return nil, err
	}

	return toAccount(acct, token), nil
}

func (p *identityProvider) SignIn(_ context.Context, email, password string) (*service.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, exists := p.byEmail[email]
	if !exists {
		return nil, domainerrors.ErrUserNotFound
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.passwordHash), []byte(password)) != nil {
		return nil, domainerrors.ErrWrongPassword
	}

	token, err := p.issueToken(acct)
	if err != nil {
		return nil, err
	}

	return toAccount(acct, token), nil
}

// SignInWithIDToken accepts any parseable federated token and derives a
// deterministic account from its email claim. Good enough for a dev
// loop; there is no signature verification against the upstream issuer.
func (p *identityProvider) SignInWithIDToken(_ context.Context, idToken string) (*service.Account, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, domainerrors.ErrAuthFailed.WrapMessage(err.Error())
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, domainerrors.ErrAuthFailed.WithDetails("federated token has no email claim")
	}
	email = strings.ToLower(email)
	name, _ := claims["name"].(string)

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, exists := p.byEmail[email]
	if !exists {
		acct = &account{
			uid:         uuid.NewString(),
			email:       email,
			displayName: name,
		}
		p.byEmail[email] = acct
		p.byUID[acct.uid] = acct
	}

	token, err := p.issueToken(acct)
	if err != nil {
		return nil, err
	}

	result := toAccount(acct, token)
	result.EmailVerified = true

	return result, nil
}

func (p *identityProvider) VerifyToken(_ context.Context, idToken string) (string, error) {
	token, err := jwt.Parse(idToken, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domainerrors.ErrSessionNotFound
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domainerrors.ErrSessionNotFound
	}
	uid, _ := claims["sub"].(string)
	epoch, _ := claims["epoch"].(float64)

	p.mu.RLock()
	defer p.mu.RUnlock()

	acct, exists := p.byUID[uid]
	if !exists || int64(epoch) != acct.tokenEpoch {
		return "", domainerrors.ErrSessionNotFound
	}

	return uid, nil
}

func (p *identityProvider) UpdateDisplayName(_ context.Context, uid, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, exists := p.byUID[uid]
	if !exists {
		return domainerrors.ErrUserNotFound
	}
	acct.displayName = name

	return nil
}

func (p *identityProvider) SignOut(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, exists := p.byUID[uid]
	if !exists {
		return domainerrors.ErrUserNotFound
	}
	acct.tokenEpoch++

	return nil
}

func (p *identityProvider) DeleteAccount(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, exists := p.byUID[uid]
	if !exists {
		return domainerrors.ErrUserNotFound
	}
	delete(p.byUID, uid)
	delete(p.byEmail, acct.email)

	return nil
}

func (p *identityProvider) issueToken(acct *account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   acct.uid,
		"email": acct.email,
		"iat":   now.Unix(),
		"exp":   now.Add(p.tokenTTL).Unix(),
		"epoch": acct.tokenEpoch,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session token")
	}

	return token, nil
}

func toAccount(acct *account, token string) *service.Account {
	return &service.Account{
		UID:         acct.uid,
		Email:       acct.email,
		DisplayName: acct.displayName,
		IDToken:     token,
	}
}

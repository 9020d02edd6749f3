// Package impl contains the application-specific business rules implementations.
package impl

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flagfeed/config"
	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/domain/entity"
	domainerrors "flagfeed/internal/domain/errors"
	"flagfeed/internal/domain/repository"
	"flagfeed/internal/domain/service"
	"flagfeed/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const dateOfBirthLayout = "2006-01-02"

// sessionEntry is the live local state for one signed-in uid.
type sessionEntry struct {
	user  *entity.User
	unsub repository.Unsubscribe
}

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	identity     service.IdentityProvider
	userRepo     repository.UserRepository
	profileRepo  repository.ProfileRepository
	genderFilter usecase.GenderFilterUsecase
	config       *config.Config
	logger       *slog.Logger

	// watchCtx outlives any single request; document subscriptions are
	// bound to it and released per-session on logout.
	watchCtx context.Context

	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	observers []usecase.StatusObserverFunc
}

// SessionServiceParams holds dependencies for SessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	Ctx          context.Context
	Identity     service.IdentityProvider
	UserRepo     repository.UserRepository
	ProfileRepo  repository.ProfileRepository
	GenderFilter usecase.GenderFilterUsecase
	Config       *config.Config
	Logger       *slog.Logger
}

// NewSessionService creates a new session service instance.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	return &sessionService{
		identity:     params.Identity,
		userRepo:     params.UserRepo,
		profileRepo:  params.ProfileRepo,
		genderFilter: params.GenderFilter,
		config:       params.Config,
		logger:       params.Logger,
		watchCtx:     params.Ctx,
		sessions:     make(map[string]*sessionEntry),
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *sessionService) RegisterStatusObserver(fn usecase.StatusObserverFunc) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.observers = append(srv.observers, fn)
}

// Register creates the identity account, writes the pending user
// document and opens a live session.
func (srv *sessionService) Register(ctx context.Context, input usecase.RegisterInput) (*usecase.SessionState, error) {
	// The form layer validates everything; gender gets a second check
	// because feed visibility depends on it.
	gender, ok := srv.genderFilter.Normalize(string(input.Gender))
	if !ok {
		return nil, domainerrors.ErrGenderRequired
	}

	dateOfBirth, err := parseDateOfBirth(input.DateOfBirth)
	if err != nil {
		return nil, err
	}

	account, err := srv.identity.SignUp(ctx, strings.ToLower(input.Email), input.Password)
	if err != nil {
		return nil, err
	}

	patch := repository.UserPatch{
		"name":        input.Name,
		"email":       strings.ToLower(input.Email),
		"phone":       sanitizePhone(input.Phone),
		"location":    input.Location,
		"selfieUrl":   input.SelfieURL,
		"status":      string(entity.StatusPendingVerification),
		"gender":      string(gender),
		"dateOfBirth": dateOfBirth,
		"authMethod":  string(entity.AuthMethodEmailPassword),
		"createdAt":   repository.ServerTimestamp,
		"updatedAt":   repository.ServerTimestamp,
	}
	if err := srv.userRepo.Set(ctx, account.UID, patch); err != nil {
		srv.log(ctx).Error("Failed to write user document after sign-up",
			slog.String("uid", account.UID), slog.Any("error", err))

		return nil, domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}

	// Best effort; the document's name field is authoritative.
	if err := srv.identity.UpdateDisplayName(ctx, account.UID, input.Name); err != nil {
		srv.log(ctx).Warn("Failed to set provider display name", slog.Any("error", err))
	}

	user := &entity.User{
		ID:          account.UID,
		Name:        input.Name,
		Email:       strings.ToLower(input.Email),
		Phone:       sanitizePhone(input.Phone),
		Location:    input.Location,
		SelfieURL:   input.SelfieURL,
		Status:      entity.StatusPendingVerification,
		Gender:      gender,
		DateOfBirth: dateOfBirth,
		AuthMethod:  entity.AuthMethodEmailPassword,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	srv.openSession(user)

	return &usecase.SessionState{User: user, IDToken: account.IDToken}, nil
}

// Login authenticates and point-reads the user document once to build
// the session snapshot; the live subscription takes over from there.
func (srv *sessionService) Login(ctx context.Context, email, password string) (*usecase.SessionState, error) {
	account, err := srv.identity.SignIn(ctx, strings.ToLower(email), password)
	if err != nil {
		return nil, err
	}

	user, err := srv.userRepo.Get(ctx, account.UID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserDocNotFound) {
			return nil, domainerrors.ErrStoreRead.WrapMessage(err.Error())
		}
		// Identity account without a document; fall back to a minimal
		// pending record derived from the provider.
		user = &entity.User{
			ID:         account.UID,
			Name:       account.DisplayName,
			Email:      account.Email,
			Status:     entity.StatusPendingVerification,
			AuthMethod: entity.AuthMethodEmailPassword,
		}
	}
	srv.openSession(user)

	return &usecase.SessionState{User: user, IDToken: account.IDToken}, nil
}

// LoginWithIDToken signs in with a third-party credential and merges the
// provider account into the user document, preserving existing fields.
// createdAt is written only on first creation; updatedAt always.
func (srv *sessionService) LoginWithIDToken(ctx context.Context, idToken string) (*usecase.SessionState, error) {
	account, err := srv.identity.SignInWithIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	existing, err := srv.userRepo.Get(ctx, account.UID)
	if err != nil && !errors.Is(err, repository.ErrUserDocNotFound) {
		return nil, domainerrors.ErrStoreRead.WrapMessage(err.Error())
	}

	patch := repository.UserPatch{
		"googleAuthProvider": true,
		"updatedAt":          repository.ServerTimestamp,
	}
	if existing == nil {
		patch["name"] = account.DisplayName
		patch["email"] = strings.ToLower(account.Email)
		patch["selfieUrl"] = account.PhotoURL
		patch["status"] = string(entity.StatusPendingVerification)
		patch["authMethod"] = string(entity.AuthMethodGoogle)
		patch["createdAt"] = repository.ServerTimestamp
	}
	if err := srv.userRepo.Set(ctx, account.UID, patch); err != nil {
		return nil, domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}

	user, err := srv.userRepo.Get(ctx, account.UID)
	if err != nil {
		return nil, domainerrors.ErrStoreRead.WrapMessage(err.Error())
	}
	srv.openSession(user)

	return &usecase.SessionState{User: user, IDToken: account.IDToken}, nil
}

// Current returns the live user view, lazily re-attaching the document
// subscription when none is active (e.g. after a process restart).
func (srv *sessionService) Current(ctx context.Context, uid string) (*entity.User, error) {
	srv.mu.Lock()
	if entry, ok := srv.sessions[uid]; ok {
		user := *entry.user
		srv.mu.Unlock()

		return &user, nil
	}
	srv.mu.Unlock()

	user, err := srv.userRepo.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserDocNotFound) {
			return nil, domainerrors.ErrUserNotFound
		}

		return nil, domainerrors.ErrStoreRead.WrapMessage(err.Error())
	}
	srv.openSession(user)

	return user, nil
}

func (srv *sessionService) Logout(ctx context.Context, uid string, revokeProvider bool) error {
	srv.closeSession(uid)

	if revokeProvider {
		if err := srv.identity.SignOut(ctx, uid); err != nil {
			return errors.Wrap(err, "failed to revoke provider session")
		}
	}

	return nil
}

func (srv *sessionService) UpdateGender(ctx context.Context, uid string, gender entity.Gender) error {
	normalized, ok := srv.genderFilter.Normalize(string(gender))
	if !ok {
		return domainerrors.ErrGenderRequired
	}

	return srv.updateField(ctx, uid, "gender", string(normalized),
		func(u *entity.User) { u.Gender = normalized },
		func(u *entity.User, prev entity.User) { u.Gender = prev.Gender })
}

func (srv *sessionService) UpdatePhone(ctx context.Context, uid, phone string) error {
	sanitized := sanitizePhone(phone)

	return srv.updateField(ctx, uid, "phone", sanitized,
		func(u *entity.User) { u.Phone = sanitized },
		func(u *entity.User, prev entity.User) { u.Phone = prev.Phone })
}

func (srv *sessionService) UpdateDateOfBirth(ctx context.Context, uid, dateOfBirth string) error {
	parsed, err := parseDateOfBirth(dateOfBirth)
	if err != nil {
		return err
	}

	return srv.updateField(ctx, uid, "dateOfBirth", parsed,
		func(u *entity.User) { u.DateOfBirth = parsed },
		func(u *entity.User, prev entity.User) { u.DateOfBirth = prev.DateOfBirth })
}

func (srv *sessionService) UpdateAuthMethod(ctx context.Context, uid string, method entity.AuthMethod) error {
	if method != entity.AuthMethodEmailPassword && method != entity.AuthMethodGoogle {
		return domainerrors.ErrValidationFailed.WithDetails("unknown auth method")
	}

	return srv.updateField(ctx, uid, "authMethod", string(method),
		func(u *entity.User) { u.AuthMethod = method },
		func(u *entity.User, prev entity.User) { u.AuthMethod = prev.AuthMethod })
}

// updateField applies the optimistic update to the cached session user,
// merge-writes the field, and rolls the cache back on remote failure.
// Every field mutation goes through this one path.
func (srv *sessionService) updateField(ctx context.Context, uid, field string, value any,
	apply func(*entity.User), rollback func(*entity.User, entity.User),
) error {
	srv.mu.Lock()
	entry, active := srv.sessions[uid]
	var prev entity.User
	if active {
		prev = *entry.user
		apply(entry.user)
	}
	srv.mu.Unlock()

	patch := repository.UserPatch{
		field:       value,
		"updatedAt": repository.ServerTimestamp,
	}
	if err := srv.userRepo.Set(ctx, uid, patch); err != nil {
		if active {
			srv.mu.Lock()
			if entry, ok := srv.sessions[uid]; ok {
				rollback(entry.user, prev)
			}
			srv.mu.Unlock()
		}
		srv.log(ctx).Error("Field update failed, rolled back local state",
			slog.String("uid", uid), slog.String("field", field), slog.Any("error", err))

		return domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}

	return nil
}

// DeleteAccount removes the owned profile documents, the user document
// and finally the identity account. The store has no cascade; the
// profile batch delete is explicit. The identity account goes last so a
// store failure leaves a credential behind to retry the operation with.
func (srv *sessionService) DeleteAccount(ctx context.Context, uid string) error {
	srv.closeSession(uid)

	if err := srv.profileRepo.DeleteByOwner(ctx, uid); err != nil {
		return domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}
	if err := srv.userRepo.Delete(ctx, uid); err != nil {
		return domainerrors.ErrStoreWrite.WrapMessage(err.Error())
	}

	if err := srv.identity.DeleteAccount(ctx, uid); err != nil {
		return err
	}

	srv.log(ctx).Info("Account deleted", slog.String("uid", uid))

	return nil
}

// openSession installs the local entry and attaches the live document
// subscription. Re-opening an existing session is a no-op beyond
// refreshing the cached user.
func (srv *sessionService) openSession(user *entity.User) {
	uid := user.ID

	srv.mu.Lock()
	if entry, ok := srv.sessions[uid]; ok {
		entry.user = user
		srv.mu.Unlock()

		return
	}
	srv.mu.Unlock()

	// Snapshots arriving before the entry is installed are dropped by
	// onUserSnapshot's lookup.
	unsub := srv.userRepo.Watch(srv.watchCtx, uid, func(snapshot *entity.User, err error) {
		srv.onUserSnapshot(uid, snapshot, err)
	})

	srv.mu.Lock()
	if _, ok := srv.sessions[uid]; ok {
		// Lost a race with a concurrent login for the same uid.
		srv.mu.Unlock()
		unsub()

		return
	}
	srv.sessions[uid] = &sessionEntry{user: user, unsub: unsub}
	srv.mu.Unlock()
}

func (srv *sessionService) closeSession(uid string) {
	srv.mu.Lock()
	entry, ok := srv.sessions[uid]
	if ok {
		delete(srv.sessions, uid)
	}
	srv.mu.Unlock()

	if ok && entry.unsub != nil {
		entry.unsub()
	}
}

// onUserSnapshot folds a live document update into the session entry and
// fans out status transitions to the registered observers. Snapshots for
// a closed session are dropped.
func (srv *sessionService) onUserSnapshot(uid string, user *entity.User, err error) {
	if err != nil {
		// Degrade: keep the last known state, the subscription retries.
		srv.logger.Warn("User subscription degraded", slog.String("uid", uid), slog.Any("error", err))

		return
	}
	if user == nil {
		return
	}

	srv.mu.Lock()
	entry, ok := srv.sessions[uid]
	if !ok {
		srv.mu.Unlock()

		return
	}
	statusChanged := entry.user.Status != user.Status
	entry.user = user
	observers := make([]usecase.StatusObserverFunc, len(srv.observers))
	copy(observers, srv.observers)
	srv.mu.Unlock()

	if !statusChanged {
		return
	}

	srv.logger.Info("User status transition observed",
		slog.String("uid", uid), slog.String("status", user.Status.String()))

	for _, observe := range observers {
		observe(uid, user)
	}
}

func sanitizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		default:
			return r
		}
	}, phone)
}

func parseDateOfBirth(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(dateOfBirthLayout, raw)
	if err != nil {
		return time.Time{}, domainerrors.ErrValidationFailed.WithDetails("date of birth must be YYYY-MM-DD")
	}

	return parsed, nil
}

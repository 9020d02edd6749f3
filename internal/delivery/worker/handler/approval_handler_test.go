package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flagfeed/config"
	"flagfeed/internal/domain/entity"
	"flagfeed/internal/domain/repository"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	patches map[string]repository.UserPatch
	setErr  error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{patches: make(map[string]repository.UserPatch)}
}

func (r *fakeUserRepo) Get(ctx context.Context, uid string) (*entity.User, error) {
	return nil, repository.ErrUserDocNotFound
}

func (r *fakeUserRepo) Set(ctx context.Context, uid string, patch repository.UserPatch) error {
	if r.setErr != nil {
		return r.setErr
	}
	r.patches[uid] = patch

	return nil
}

func (r *fakeUserRepo) Watch(ctx context.Context, uid string, fn repository.UserSnapshotFunc) repository.Unsubscribe {
	return func() {}
}

func (r *fakeUserRepo) Delete(ctx context.Context, uid string) error {
	return nil
}

func newTestHandler(repo *fakeUserRepo) *ApprovalHandler {
	return &ApprovalHandler{
		verifyPushAuth: false,
		logger:         slog.New(slog.DiscardHandler),
		userRepo:       repo,
	}
}

func pushRequest(t *testing.T, event ApprovalEvent) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var msg PubSubMessage
	msg.Message.Data = base64.StdEncoding.EncodeToString(payload)
	msg.Message.MessageID = "msg-1"
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	return e.NewContext(req, rec), rec
}

func TestHandlePush_ApprovedSetsUsernameAndTimestamps(t *testing.T) {
	repo := newFakeUserRepo()
	h := newTestHandler(repo)

	c, rec := pushRequest(t, ApprovalEvent{
		UserID:   "uid-1",
		Decision: DecisionApproved,
		Username: "sunny_42",
	})

	require.NoError(t, h.HandlePush(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	patch, ok := repo.patches["uid-1"]
	require.True(t, ok)
	assert.Equal(t, entity.StatusApproved.String(), patch["status"])
	assert.Equal(t, "sunny_42", patch["username"])
	assert.Equal(t, repository.ServerTimestamp, patch["approvedAt"])
	assert.Equal(t, repository.ServerTimestamp, patch["updatedAt"])
}

func TestHandlePush_RejectedSetsStatusOnly(t *testing.T) {
	repo := newFakeUserRepo()
	h := newTestHandler(repo)

	c, rec := pushRequest(t, ApprovalEvent{
		UserID:   "uid-2",
		Decision: DecisionRejected,
	})

	require.NoError(t, h.HandlePush(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	patch, ok := repo.patches["uid-2"]
	require.True(t, ok)
	assert.Equal(t, entity.StatusRejected.String(), patch["status"])
	assert.NotContains(t, patch, "username")
	assert.NotContains(t, patch, "approvedAt")
}

func TestHandlePush_MalformedDecisionIsAcked(t *testing.T) {
	repo := newFakeUserRepo()
	h := newTestHandler(repo)

	tests := []struct {
		name  string
		event ApprovalEvent
	}{
		{"unknown decision", ApprovalEvent{UserID: "uid-3", Decision: "maybe"}},
		{"approved without username", ApprovalEvent{UserID: "uid-3", Decision: DecisionApproved}},
		{"missing user id", ApprovalEvent{Decision: DecisionRejected}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := pushRequest(t, tt.event)

			require.NoError(t, h.HandlePush(c))
			// Permanent failures are acked with 200 so Pub/Sub stops retrying
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, repo.patches)
		})
	}
}

func TestHandlePush_StoreFailureIsRetryable(t *testing.T) {
	repo := newFakeUserRepo()
	repo.setErr = errors.New("store unavailable")
	h := newTestHandler(repo)

	c, rec := pushRequest(t, ApprovalEvent{
		UserID:   "uid-4",
		Decision: DecisionRejected,
	})

	require.NoError(t, h.HandlePush(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlePush_BadBase64IsBadRequest(t *testing.T) {
	repo := newFakeUserRepo()
	h := newTestHandler(repo)

	var msg PubSubMessage
	msg.Message.Data = "not-base64!!!"
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.HandlePush(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewApprovalHandler_VerifiesPushAuthOnlyForGoogleProd(t *testing.T) {
	cfg := &config.Config{}
	cfg.Env.Env = "production"
	cfg.PubSub = &config.PubSubConfig{Provider: "google"}

	h := NewApprovalHandler(ApprovalHandlerParams{
		Config:   cfg,
		Logger:   slog.New(slog.DiscardHandler),
		UserRepo: newFakeUserRepo(),
	})
	assert.True(t, h.verifyPushAuth)

	cfg.Env.Env = "develop"
	h = NewApprovalHandler(ApprovalHandlerParams{
		Config:   cfg,
		Logger:   slog.New(slog.DiscardHandler),
		UserRepo: newFakeUserRepo(),
	})
	assert.False(t, h.verifyPushAuth)
}

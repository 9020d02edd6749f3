package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flagfeed/config"
	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/delivery/http/validator"
	"flagfeed/internal/domain/entity"
	"flagfeed/internal/infra/qrcode"
	"flagfeed/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeedUsecase struct {
	profiles  []*usecase.FeedProfile
	err       error
	added     []usecase.AddProfileInput
	comments  []string
	votes     []entity.VoteKind
	refreshed int
}

func (f *fakeFeedUsecase) Profiles(ctx context.Context, viewerID string) ([]*usecase.FeedProfile, error) {
	return f.profiles, f.err
}

func (f *fakeFeedUsecase) Refresh(ctx context.Context, viewerID string) error {
	f.refreshed++

	return f.err
}

func (f *fakeFeedUsecase) AddProfile(ctx context.Context, viewerID string, input usecase.AddProfileInput) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.added = append(f.added, input)

	return "profile-1", nil
}

func (f *fakeFeedUsecase) AddComment(ctx context.Context, viewerID, profileID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.comments = append(f.comments, text)

	return nil
}

func (f *fakeFeedUsecase) Vote(ctx context.Context, viewerID, profileID string, kind entity.VoteKind) error {
	if f.err != nil {
		return f.err
	}
	f.votes = append(f.votes, kind)

	return nil
}

func newFeedTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	e.Validator = validator.New()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	deliverycontext.SetViewerID(c, "viewer-1")

	return c, rec
}

func newFeedTestHandler(uc *fakeFeedUsecase) *FeedHandler {
	cfg := &config.Config{}
	cfg.QRCode = &config.QRCodeConfig{Size: 128, ErrorCorrectionLevel: "M", ShareBaseURL: "https://flagfeed.app"}

	return &FeedHandler{
		feedUC:    uc,
		qrcodeSvc: qrcode.NewQRCodeService(cfg),
		logger:    slog.New(slog.DiscardHandler),
	}
}

func TestFeedHandler_Feed(t *testing.T) {
	uc := &fakeFeedUsecase{
		profiles: []*usecase.FeedProfile{
			{
				Profile: &entity.Profile{
					ID:            "profile-1",
					Name:          "Alex",
					Age:           27,
					City:          "Austin",
					ImageURL:      "https://cdn.example.com/alex.jpg",
					OwnerUsername: "user123",
					CreatedAt:     time.Now(),
				},
				GreenFlags:   4,
				RedFlags:     1,
				CommentCount: 2,
				ViewerVote:   entity.VoteGreen,
				Comments: []*entity.Comment{
					{ID: "comment-1", Author: "user456", Text: "seems nice"},
				},
			},
		},
	}
	h := newFeedTestHandler(uc)

	c, rec := newFeedTestContext(t, http.MethodGet, "/feed", "")
	require.NoError(t, h.Feed(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"greenFlags":4`)
	assert.Contains(t, body, `"viewerVote":"green"`)
	assert.Contains(t, body, `"seems nice"`)
}

func TestFeedHandler_AddProfile(t *testing.T) {
	uc := &fakeFeedUsecase{}
	h := newFeedTestHandler(uc)

	c, rec := newFeedTestContext(t, http.MethodPost, "/profiles",
		`{"name":"Alex","age":27,"city":"Austin","imageUrl":"https://cdn.example.com/alex.jpg"}`)
	require.NoError(t, h.AddProfile(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "profile-1")
	require.Len(t, uc.added, 1)
	assert.Equal(t, "Alex", uc.added[0].Name)
}

func TestFeedHandler_AddProfileRejectsUnderage(t *testing.T) {
	uc := &fakeFeedUsecase{}
	h := newFeedTestHandler(uc)

	c, _ := newFeedTestContext(t, http.MethodPost, "/profiles",
		`{"name":"Alex","age":15,"city":"Austin","imageUrl":"https://cdn.example.com/alex.jpg"}`)

	err := h.AddProfile(c)
	require.Error(t, err)
	assert.Empty(t, uc.added)
}

func TestFeedHandler_VoteValidatesKind(t *testing.T) {
	uc := &fakeFeedUsecase{}
	h := newFeedTestHandler(uc)

	c, rec := newFeedTestContext(t, http.MethodPut, "/profiles/profile-1/vote", `{"kind":"green"}`)
	c.SetParamNames("id")
	c.SetParamValues("profile-1")
	require.NoError(t, h.Vote(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []entity.VoteKind{entity.VoteGreen}, uc.votes)

	c, _ = newFeedTestContext(t, http.MethodPut, "/profiles/profile-1/vote", `{"kind":"purple"}`)
	c.SetParamNames("id")
	c.SetParamValues("profile-1")
	require.Error(t, h.Vote(c))
	assert.Len(t, uc.votes, 1)
}

func TestFeedHandler_ShareQRReturnsPNG(t *testing.T) {
	uc := &fakeFeedUsecase{}
	h := newFeedTestHandler(uc)

	c, rec := newFeedTestContext(t, http.MethodGet, "/profiles/profile-1/qr", "")
	c.SetParamNames("id")
	c.SetParamValues("profile-1")
	require.NoError(t, h.ShareQR(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, rec.Body.Bytes()[:4])
}

package handler

import (
	"log/slog"
	"net/http"
	"time"

	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/delivery/http/response"
	"flagfeed/internal/domain/entity"
	"flagfeed/internal/domain/service"
	"flagfeed/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type addProfileRequest struct {
	Name        string `json:"name" validate:"required"`
	Age         int    `json:"age" validate:"required,gte=18,lte=120"`
	City        string `json:"city" validate:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl" validate:"required,url"`
}

type addCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

type voteRequest struct {
	Kind string `json:"kind" validate:"required,oneof=green red"`
}

// commentResponse is the externally visible comment view.
type commentResponse struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// feedProfileResponse is the merged profile card delivered to clients.
type feedProfileResponse struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Age           int                `json:"age"`
	City          string             `json:"city"`
	Description   string             `json:"description,omitempty"`
	ImageURL      string             `json:"imageUrl"`
	ImageThumbURL string             `json:"imageThumbUrl,omitempty"`
	OwnerUsername string             `json:"ownerUsername"`
	GreenFlags    int                `json:"greenFlags"`
	RedFlags      int                `json:"redFlags"`
	CommentCount  int                `json:"commentCount"`
	ViewerVote    string             `json:"viewerVote,omitempty"`
	Comments      []*commentResponse `json:"comments"`
	CreatedAt     time.Time          `json:"createdAt"`
}

func newFeedProfileResponse(fp *usecase.FeedProfile) *feedProfileResponse {
	comments := make([]*commentResponse, 0, len(fp.Comments))
	for _, comment := range fp.Comments {
		comments = append(comments, &commentResponse{
			ID:        comment.ID,
			Author:    comment.Author,
			Text:      comment.Text,
			CreatedAt: comment.CreatedAt,
		})
	}

	return &feedProfileResponse{
		ID:            fp.Profile.ID,
		Name:          fp.Profile.Name,
		Age:           fp.Profile.Age,
		City:          fp.Profile.City,
		Description:   fp.Profile.Description,
		ImageURL:      fp.Profile.ImageURL,
		ImageThumbURL: fp.Profile.ImageThumbURL,
		OwnerUsername: fp.Profile.OwnerUsername,
		GreenFlags:    fp.GreenFlags,
		RedFlags:      fp.RedFlags,
		CommentCount:  fp.CommentCount,
		ViewerVote:    fp.ViewerVote.String(),
		Comments:      comments,
		CreatedAt:     fp.Profile.CreatedAt,
	}
}

// FeedHandler holds dependencies for feed-related handlers.
type FeedHandler struct {
	feedUC    usecase.FeedUsecase
	qrcodeSvc service.QRCodeService
	logger    *slog.Logger
}

// NewFeedHandler is the constructor for FeedHandler, injected by Fx.
func NewFeedHandler(feedUC usecase.FeedUsecase, qrcodeSvc service.QRCodeService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		feedUC:    feedUC,
		qrcodeSvc: qrcodeSvc,
		logger:    logger,
	}
}

// Feed returns the viewer's merged live feed, newest profile first.
func (h *FeedHandler) Feed(c echo.Context) error {
	uid := deliverycontext.GetViewerID(c)

	profiles, err := h.feedUC.Profiles(c.Request().Context(), uid)
	if err != nil {
		return errors.WithStack(err)
	}

	cards := make([]*feedProfileResponse, 0, len(profiles))
	for _, fp := range profiles {
		cards = append(cards, newFeedProfileResponse(fp))
	}

	return response.Success(c, http.StatusOK, cards, "Feed retrieved successfully")
}

// Refresh handles the pull-to-refresh signal.
func (h *FeedHandler) Refresh(c echo.Context) error {
	uid := deliverycontext.GetViewerID(c)

	if err := h.feedUC.Refresh(c.Request().Context(), uid); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Feed refreshed")
}

// AddProfile handles posting a new profile card.
func (h *FeedHandler) AddProfile(c echo.Context) error {
	var req addProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid profile input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	uid := deliverycontext.GetViewerID(c)
	profileID, err := h.feedUC.AddProfile(c.Request().Context(), uid, usecase.AddProfileInput{
		Name:        req.Name,
		Age:         req.Age,
		City:        req.City,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, map[string]string{"id": profileID}, "Profile posted successfully")
}

// AddComment handles posting a comment under a profile.
func (h *FeedHandler) AddComment(c echo.Context) error {
	var req addCommentRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid comment input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	uid := deliverycontext.GetViewerID(c)
	profileID := c.Param("id")

	if err := h.feedUC.AddComment(c.Request().Context(), uid, profileID, req.Text); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, nil, "Comment posted successfully")
}

// Vote handles casting or changing a flag vote on a profile.
func (h *FeedHandler) Vote(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid vote input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	uid := deliverycontext.GetViewerID(c)
	profileID := c.Param("id")

	if err := h.feedUC.Vote(c.Request().Context(), uid, profileID, entity.VoteKind(req.Kind)); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Vote recorded successfully")
}

// ShareQR renders the share QR code PNG for a profile.
func (h *FeedHandler) ShareQR(c echo.Context) error {
	profileID := c.Param("id")
	if profileID == "" {
		return response.BadRequest(c, "INVALID_INPUT", "Profile id is required")
	}

	png, err := h.qrcodeSvc.GenerateProfileQR(profileID)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.Blob(http.StatusOK, "image/png", png)
}

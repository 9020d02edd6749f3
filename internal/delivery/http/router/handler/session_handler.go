// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"

	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/delivery/http/response"
	"flagfeed/internal/domain/entity"
	"flagfeed/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// registerRequest is the registration form payload.
type registerRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	Location    string `json:"location"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender" validate:"required"`
	SelfieURL   string `json:"selfieUrl" validate:"required,url"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type googleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type logoutRequest struct {
	// RevokeProvider additionally revokes the provider session. The
	// default is a local-only logout.
	RevokeProvider bool `json:"revokeProvider"`
}

type updateGenderRequest struct {
	Gender string `json:"gender" validate:"required"`
}

type updatePhoneRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type updateBirthdateRequest struct {
	DateOfBirth string `json:"dateOfBirth" validate:"required"`
}

type updateAuthMethodRequest struct {
	AuthMethod string `json:"authMethod" validate:"required,oneof=email_password google"`
}

// sessionResponse is the externally visible session snapshot.
type sessionResponse struct {
	User    *userResponse `json:"user"`
	IDToken string        `json:"idToken,omitempty"`
}

// userResponse is the externally visible user view.
type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Location    string `json:"location,omitempty"`
	SelfieURL   string `json:"selfieUrl,omitempty"`
	Status      string `json:"status"`
	Username    string `json:"username,omitempty"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	AuthMethod  string `json:"authMethod,omitempty"`
}

func newUserResponse(user *entity.User) *userResponse {
	if user == nil {
		return nil
	}

	resp := &userResponse{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Phone:      user.Phone,
		Location:   user.Location,
		SelfieURL:  user.SelfieURL,
		Status:     user.Status.String(),
		Username:   user.Username,
		Gender:     user.Gender.String(),
		AuthMethod: string(user.AuthMethod),
	}
	if !user.DateOfBirth.IsZero() {
		resp.DateOfBirth = user.DateOfBirth.Format("2006-01-02")
	}

	return resp
}

func newSessionResponse(state *usecase.SessionState) *sessionResponse {
	return &sessionResponse{
		User:    newUserResponse(state.User),
		IDToken: state.IDToken,
	}
}

// SessionHandler holds dependencies for session and account handlers.
type SessionHandler struct {
	sessionUC usecase.SessionUsecase
	genderUC  usecase.GenderFilterUsecase
	logger    *slog.Logger
}

// NewSessionHandler is the constructor for SessionHandler, injected by Fx.
func NewSessionHandler(sessionUC usecase.SessionUsecase, genderUC usecase.GenderFilterUsecase, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionUC: sessionUC,
		genderUC:  genderUC,
		logger:    logger,
	}
}

// Register handles the registration request.
func (h *SessionHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid registration input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	gender, ok := h.genderUC.Normalize(req.Gender)
	if !ok {
		return response.BadRequest(c, "GENDER_REQUIRED", "A known gender is required to register")
	}

	state, err := h.sessionUC.Register(c.Request().Context(), usecase.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Location:    req.Location,
		Phone:       req.Phone,
		DateOfBirth: req.DateOfBirth,
		Gender:      gender,
		SelfieURL:   req.SelfieURL,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, newSessionResponse(state), "Registration submitted for review")
}

// Login handles the email/password login request.
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid login input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	state, err := h.sessionUC.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newSessionResponse(state), "Login successful")
}

// GoogleLogin handles the third-party credential login request.
func (h *SessionHandler) GoogleLogin(c echo.Context) error {
	var req googleLoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid Google login input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	state, err := h.sessionUC.LoginWithIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newSessionResponse(state), "Google login successful")
}

// Logout handles the logout request.
func (h *SessionHandler) Logout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid logout input")
	}

	uid := deliverycontext.GetViewerID(c)
	if err := h.sessionUC.Logout(c.Request().Context(), uid, req.RevokeProvider); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "Successfully logged out"}, "Logout successful")
}

// Current handles the request for the live session view.
func (h *SessionHandler) Current(c echo.Context) error {
	uid := deliverycontext.GetViewerID(c)

	user, err := h.sessionUC.Current(c.Request().Context(), uid)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(user), "Session retrieved successfully")
}

// UpdateGender handles the gender update request.
func (h *SessionHandler) UpdateGender(c echo.Context) error {
	var req updateGenderRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid gender input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	gender, ok := h.genderUC.Normalize(req.Gender)
	if !ok {
		return response.BadRequest(c, "GENDER_REQUIRED", "Unknown gender value")
	}

	uid := deliverycontext.GetViewerID(c)
	if err := h.sessionUC.UpdateGender(c.Request().Context(), uid, gender); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Gender updated successfully")
}

// UpdatePhone handles the phone update request.
func (h *SessionHandler) UpdatePhone(c echo.Context) error {
	var req updatePhoneRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid phone input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	uid := deliverycontext.GetViewerID(c)
	if err := h.sessionUC.UpdatePhone(c.Request().Context(), uid, req.Phone); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Phone updated successfully")
}

// UpdateBirthdate handles the date-of-birth update request.
func (h *SessionHandler) UpdateBirthdate(c echo.Context) error {
	var req updateBirthdateRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid birthdate input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	uid := deliverycontext.GetViewerID(c)
	if err := h.sessionUC.UpdateDateOfBirth(c.Request().Context(), uid, req.DateOfBirth); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Date of birth updated successfully")
}

// UpdateAuthMethod handles the auth method update request.
func (h *SessionHandler) UpdateAuthMethod(c echo.Context) error {
	var req updateAuthMethodRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid auth method input")
	}
	if err := c.Validate(&req); err != nil {
		return errors.WithStack(err)
	}

	uid := deliverycontext.GetViewerID(c)
	if err := h.sessionUC.UpdateAuthMethod(c.Request().Context(), uid, entity.AuthMethod(req.AuthMethod)); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Auth method updated successfully")
}

// DeleteAccount handles the account deletion request.
func (h *SessionHandler) DeleteAccount(c echo.Context) error {
	uid := deliverycontext.GetViewerID(c)

	if err := h.sessionUC.DeleteAccount(c.Request().Context(), uid); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Account deleted successfully")
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"}, "Service is healthy")
}

// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"flagfeed/config"
	"flagfeed/internal/delivery/http/middleware"
	"flagfeed/internal/delivery/http/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	Config         *config.Config
	SessionHandler *handler.SessionHandler
	FeedHandler    *handler.FeedHandler
	UploadHandler  *handler.UploadHandler
	TestHandler    *handler.TestHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	cfg            *config.Config
	sessionHandler *handler.SessionHandler
	feedHandler    *handler.FeedHandler
	uploadHandler  *handler.UploadHandler
	testHandler    *handler.TestHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		cfg:            params.Config,
		sessionHandler: params.SessionHandler,
		feedHandler:    params.FeedHandler,
		uploadHandler:  params.UploadHandler,
		testHandler:    params.TestHandler,
		authMiddleware: params.AuthMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Credential routes, no session required
	authGroup := e.Group("/auth")
	{
		authGroup.POST("/register", r.sessionHandler.Register)
		authGroup.POST("/login", r.sessionHandler.Login)
		authGroup.POST("/login/google", r.sessionHandler.GoogleLogin)
	}

	// Logout needs the viewer id from the session token
	logoutGroup := e.Group("/auth")
	logoutGroup.Use(r.authMiddleware.Authenticate)
	{
		logoutGroup.POST("/logout", r.sessionHandler.Logout)
	}

	// Session routes operate on the signed-in account
	sessionGroup := e.Group("/session")
	sessionGroup.Use(r.authMiddleware.Authenticate)
	{
		sessionGroup.GET("", r.sessionHandler.Current)
		sessionGroup.PATCH("/gender", r.sessionHandler.UpdateGender)
		sessionGroup.PATCH("/phone", r.sessionHandler.UpdatePhone)
		sessionGroup.PATCH("/birthdate", r.sessionHandler.UpdateBirthdate)
		sessionGroup.PATCH("/auth-method", r.sessionHandler.UpdateAuthMethod)
		sessionGroup.DELETE("", r.sessionHandler.DeleteAccount)
	}

	// Feed routes require an approved session; the usecase enforces
	// the approval gate itself.
	feedGroup := e.Group("/feed")
	feedGroup.Use(r.authMiddleware.Authenticate)
	{
		feedGroup.GET("", r.feedHandler.Feed)
		feedGroup.POST("/refresh", r.feedHandler.Refresh)
	}

	profileGroup := e.Group("/profiles")
	profileGroup.Use(r.authMiddleware.Authenticate)
	{
		profileGroup.POST("", r.feedHandler.AddProfile)
		profileGroup.POST("/:id/comments", r.feedHandler.AddComment)
		profileGroup.PUT("/:id/vote", r.feedHandler.Vote)
		profileGroup.GET("/:id/qr", r.feedHandler.ShareQR)
	}

	uploadGroup := e.Group("/uploads")
	uploadGroup.Use(r.authMiddleware.Authenticate)
	{
		uploadGroup.POST("", r.uploadHandler.Upload)
	}

	// Test routes for middleware validation, enabled per environment
	if r.cfg.TestRoutes != nil && r.cfg.TestRoutes.Enabled {
		testGroup := e.Group("/test")
		{
			testGroup.GET("/public", r.testHandler.TestPublicEndpoint)
			testGroup.GET("/auth", r.testHandler.TestAuthMiddleware, r.authMiddleware.Authenticate)
		}
	}
}

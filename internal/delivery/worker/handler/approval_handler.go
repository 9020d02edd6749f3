// Package handler contains the Pub/Sub push handlers for the worker.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"flagfeed/config"
	deliverycontext "flagfeed/internal/delivery/context"
	"flagfeed/internal/domain/entity"
	"flagfeed/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/idtoken"
)

// Review decisions carried by approval events.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// PubSubMessage represents the structure of a Pub/Sub push message
type PubSubMessage struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ApprovalEvent is the review decision payload published by the
// moderation pipeline after a human reviewed a registration.
type ApprovalEvent struct {
	RequestID string `json:"request_id,omitempty"` // For distributed tracing
	UserID    string `json:"user_id"`
	Decision  string `json:"decision"` // "approved" or "rejected"
	// Username is the handle assigned by the reviewer; required for
	// approvals, ignored for rejections.
	Username string `json:"username,omitempty"`
}

// retryableError wraps an error to indicate it should trigger a Pub/Sub retry
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.err)
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// newRetryableError wraps an error as retryable
func newRetryableError(err error) error {
	return &retryableError{err: err}
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	var re *retryableError

	return errors.As(err, &re)
}

// ApprovalHandler handles Pub/Sub push messages carrying review decisions
type ApprovalHandler struct {
	verifyPushAuth bool
	logger         *slog.Logger
	userRepo       repository.UserRepository
}

// ApprovalHandlerParams holds dependencies for the ApprovalHandler
type ApprovalHandlerParams struct {
	fx.In

	Config   *config.Config
	Logger   *slog.Logger
	UserRepo repository.UserRepository
}

// NewApprovalHandler creates a new Pub/Sub push handler
func NewApprovalHandler(params ApprovalHandlerParams) *ApprovalHandler {
	// Determine if we need to verify push auth based on config
	verifyPushAuth := params.Config.PubSub != nil &&
		params.Config.PubSub.Provider == "google" &&
		params.Config.Env.Env != "develop"

	return &ApprovalHandler{
		verifyPushAuth: verifyPushAuth,
		logger:         params.Logger,
		userRepo:       params.UserRepo,
	}
}

// HandlePush handles incoming Pub/Sub push messages
func (h *ApprovalHandler) HandlePush(c echo.Context) error {
	ctx := c.Request().Context()

	// Verify Pub/Sub token in production for Google provider
	if h.verifyPushAuth {
		if err := verifyPubSubToken(c.Request()); err != nil {
			h.logger.Warn("[Worker] Invalid Pub/Sub token", slog.Any("error", err))

			return c.NoContent(http.StatusUnauthorized)
		}
	}

	// Parse Pub/Sub message
	var pushMsg PubSubMessage
	if err := c.Bind(&pushMsg); err != nil {
		h.logger.Error("[Worker] Failed to parse push message", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Decode base64 message data
	data, err := base64.StdEncoding.DecodeString(pushMsg.Message.Data)
	if err != nil {
		h.logger.Error("[Worker] Failed to decode message data", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Parse approval event
	var event ApprovalEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.logger.Error("[Worker] Failed to parse approval event", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Extract request_id for distributed tracing
	// Priority: message attributes > event field > existing context
	requestID := h.extractRequestID(ctx, &pushMsg, &event)

	// Create request-scoped logger with request_id
	reqLogger := h.logger.With(slog.String("request_id", requestID))

	// Update context with request_id and logger
	ctx = deliverycontext.WithRequestID(ctx, requestID)
	ctx = deliverycontext.WithLogger(ctx, reqLogger)

	reqLogger.Info("[Worker] Processing approval event",
		slog.String("user_id", event.UserID),
		slog.String("decision", event.Decision),
	)

	// Apply the review decision
	if err := h.processDecision(ctx, &event); err != nil {
		reqLogger.Error("[Worker] Failed to apply review decision",
			slog.String("user_id", event.UserID),
			slog.Any("error", err),
			slog.Bool("retryable", isRetryableError(err)),
		)
		// Return 503 for retryable errors to trigger Pub/Sub retry
		// Return 200 for non-retryable errors to prevent infinite retries
		if isRetryableError(err) {
			return c.NoContent(http.StatusServiceUnavailable)
		}

		return c.NoContent(http.StatusOK)
	}

	reqLogger.Info("[Worker] Review decision applied",
		slog.String("user_id", event.UserID),
		slog.String("decision", event.Decision),
	)

	return c.NoContent(http.StatusOK)
}

// extractRequestID extracts request_id from message attributes, event, or generates a new one
func (h *ApprovalHandler) extractRequestID(ctx context.Context, pushMsg *PubSubMessage, event *ApprovalEvent) string {
	// 1. Try message attributes (from Pub/Sub)
	if requestID, ok := pushMsg.Message.Attributes["request_id"]; ok && requestID != "" {
		return requestID
	}

	// 2. Try event field (from JSON payload)
	if event.RequestID != "" {
		return event.RequestID
	}

	// 3. Try existing context (from RequestIDMiddleware via X-Request-Id header)
	if requestID := deliverycontext.GetRequestIDFromContext(ctx); requestID != "" {
		return requestID
	}

	// 4. Generate new UUID as fallback
	return uuid.New().String()
}

// processDecision merge-writes the decision onto the user document. The
// live document subscriptions on the API side pick the change up and
// flip the feed on or off for the account.
func (h *ApprovalHandler) processDecision(ctx context.Context, event *ApprovalEvent) error {
	if event.UserID == "" {
		return errors.New("approval event missing user_id")
	}

	patch, err := decisionPatch(event)
	if err != nil {
		return err
	}

	if err := h.userRepo.Set(ctx, event.UserID, patch); err != nil {
		return newRetryableError(errors.WithStack(err))
	}

	return nil
}

// decisionPatch builds the user document patch for a review decision.
// A malformed decision is a permanent failure, never retried.
func decisionPatch(event *ApprovalEvent) (repository.UserPatch, error) {
	switch event.Decision {
	case DecisionApproved:
		if event.Username == "" {
			return nil, errors.New("approval event missing username")
		}

		return repository.UserPatch{
			"status":     entity.StatusApproved.String(),
			"username":   event.Username,
			"approvedAt": repository.ServerTimestamp,
			"updatedAt":  repository.ServerTimestamp,
		}, nil

	case DecisionRejected:
		return repository.UserPatch{
			"status":    entity.StatusRejected.String(),
			"updatedAt": repository.ServerTimestamp,
		}, nil

	default:
		return nil, errors.Errorf("unknown review decision: %s", event.Decision)
	}
}

// verifyPubSubToken verifies the JWT token from Google Pub/Sub push requests
// Reference: https://cloud.google.com/pubsub/docs/push#authenticating_standard_push_requests
func verifyPubSubToken(req *http.Request) error {
	// Get the Authorization header
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return errors.New("missing authorization header")
	}

	// Extract Bearer token
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return errors.New("invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)

	// Construct the expected audience (the push endpoint URL)
	// The audience should be the URL of this endpoint
	scheme := "https"
	if req.TLS == nil {
		scheme = "http" // For local development
	}
	audience := fmt.Sprintf("%s://%s%s", scheme, req.Host, req.URL.Path)

	// Validate the token using Google's ID token validator
	ctx := req.Context()
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return errors.Wrap(err, "failed to validate token")
	}

	// Verify the token is from Google Pub/Sub
	// The issuer should be accounts.google.com
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return errors.Errorf("invalid issuer: %s", payload.Issuer)
	}

	// Verify email is verified (if email claim exists)
	if emailVerified, ok := payload.Claims["email_verified"].(bool); ok && !emailVerified {
		return errors.New("email not verified")
	}

	return nil
}

package service

import "context"

// Event names published to the moderation/analytics pipeline.
const (
	EventProfileCreated = "profile.created"
	EventVoteCast       = "vote.cast"
)

// FeedEvent is the envelope published when feed content changes. The
// approval pipeline and analytics consumers subscribe to these.
type FeedEvent struct {
	RequestID string `json:"request_id,omitempty"` // For distributed tracing
	Event     string `json:"event"`
	ProfileID string `json:"profile_id"`
	ActorID   string `json:"actor_id"`
	VoteKind  string `json:"vote_kind,omitempty"` // Only for vote.cast
}

// EventPublisher defines the interface for publishing events to a message queue.
type EventPublisher interface {
	// PublishFeedEvent publishes a feed event for async processing.
	PublishFeedEvent(ctx context.Context, event *FeedEvent) error

	// Close releases any resources held by the publisher.
	Close() error
}

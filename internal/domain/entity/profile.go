package entity

import "time"

// ModerationStatus is the review state of a posted profile card.
// The current creation path always writes "approved"; the pending and
// rejected states exist for a moderation gate that is not wired in.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// Profile is a posted card in the feed. The green/red flag counters and
// the comment count stored on the document are denormalized fallbacks;
// once the vote or comment sub-collection has delivered a snapshot the
// live tallies take precedence.
type Profile struct {
	ID            string           `firestore:"-"`
	Name          string           `firestore:"name"`
	Age           int              `firestore:"age"`
	City          string           `firestore:"city"`
	Description   string           `firestore:"description"`
	ImageURL      string           `firestore:"profileImageUrl"`
	ImageThumbURL string           `firestore:"profileImageThumbUrl"`
	OwnerID       string           `firestore:"uploaderUserId"`
	OwnerUsername string           `firestore:"uploaderUsername"`
	CreatorGender Gender           `firestore:"creatorGender"`
	GreenFlags    int              `firestore:"greenFlags"`
	RedFlags      int              `firestore:"redFlags"`
	CommentCount  int              `firestore:"commentCount"`
	CreatedAt     time.Time        `firestore:"createdAt,serverTimestamp"`
	Moderation    ModerationStatus `firestore:"approvalStatus"`
}

// Comment is a single remark under a profile. Comments are immutable
// once created; there is no edit or delete operation.
type Comment struct {
	ID        string    `firestore:"-"`
	AuthorID  string    `firestore:"userId"`
	Author    string    `firestore:"username"`
	Text      string    `firestore:"text"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
}

// VoteKind is one of the two flag categories a viewer may assign.
type VoteKind string

const (
	VoteGreen VoteKind = "green"
	VoteRed   VoteKind = "red"
)

// String returns the string representation of the VoteKind.
func (k VoteKind) String() string {
	return string(k)
}

// IsValid checks if the VoteKind is a valid value.
func (k VoteKind) IsValid() bool {
	return k == VoteGreen || k == VoteRed
}

// Vote is a viewer's flag on a profile. The vote document's key is the
// voter's id, so the store naturally enforces at most one vote per
// (profile, viewer) pair; changing green to red overwrites in place.
type Vote struct {
	VoterID   string    `firestore:"userId"`
	VoterName string    `firestore:"username"`
	Kind      VoteKind  `firestore:"type"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time `firestore:"updatedAt,serverTimestamp"`
}

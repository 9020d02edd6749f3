// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import "time"

// UserStatus is the account lifecycle stage controlling feed visibility.
// Transitions are performed by an external reviewer; there is no
// self-service path out of pending_verification.
type UserStatus string

const (
	// StatusPendingVerification is the state of every freshly registered account.
	StatusPendingVerification UserStatus = "pending_verification"
	// StatusApproved means the reviewer accepted the account and assigned a username.
	StatusApproved UserStatus = "approved_username_assigned"
	// StatusRejected is a terminal state; the account never gains feed access.
	StatusRejected UserStatus = "rejected"
)

// String returns the string representation of the UserStatus.
func (s UserStatus) String() string {
	return string(s)
}

// IsValid checks if the UserStatus is a valid value.
func (s UserStatus) IsValid() bool {
	switch s {
	case StatusPendingVerification, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Gender is the self-reported gender tag, normalized to lower case.
// Once set it is treated as immutable by the presentation layer; the
// store does not enforce this.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// String returns the string representation of the Gender.
func (g Gender) String() string {
	return string(g)
}

// AuthMethod records how the account authenticates.
type AuthMethod string

const (
	AuthMethodEmailPassword AuthMethod = "email_password"
	AuthMethodGoogle        AuthMethod = "google"
)

// User is the core entity in the system, representing a registered account.
// The ID is issued by the identity provider and doubles as the user
// document key in the store.
type User struct {
	ID          string     `firestore:"-"`
	Name        string     `firestore:"name"`
	Email       string     `firestore:"email"`
	Phone       string     `firestore:"phone"`
	Location    string     `firestore:"location"`
	SelfieURL   string     `firestore:"selfieUrl"`
	Status      UserStatus `firestore:"status"`
	Username    string     `firestore:"username"`
	Gender      Gender     `firestore:"gender"`
	DateOfBirth time.Time  `firestore:"dateOfBirth"`
	AuthMethod  AuthMethod `firestore:"authMethod"`
	GoogleAuth  bool       `firestore:"googleAuthProvider"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	ApprovedAt  time.Time  `firestore:"approvedAt"`
}

// IsApproved reports whether the account may see and act on the feed.
func (u *User) IsApproved() bool {
	return u != nil && u.Status == StatusApproved
}

// IsPending reports whether the account still awaits review.
func (u *User) IsPending() bool {
	return u != nil && u.Status == StatusPendingVerification
}

// IsRejected reports whether the reviewer rejected the account.
func (u *User) IsRejected() bool {
	return u != nil && u.Status == StatusRejected
}

package models

import (
	"strings"
	"time"
)

// Role enumerates the access tiers a user account can hold. Every account
// carries exactly one role; moderation and administration rights are derived
// from it rather than stored as separate flags.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalises a raw role string, returning false for unknown values.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// User is an account in the identity store. Usernames are unique
// case-insensitively and the literal name "me" is reserved for the own-profile
// endpoint. ConfirmationHash holds the hashed single-use confirmation code and
// ConfirmationState the fingerprint of the tracked fields the code was bound
// to; both are cleared when the code is consumed.
type User struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Role              Role      `json:"role"`
	FirstName         string    `json:"firstName,omitempty"`
	LastName          string    `json:"lastName,omitempty"`
	Bio               string    `json:"bio,omitempty"`
	Superuser         bool      `json:"superuser,omitempty"`
	ConfirmationHash  string    `json:"confirmationHash,omitempty"`
	ConfirmationState string    `json:"confirmationState,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// IsAdmin reports whether the account holds the admin role or is a superuser.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Superuser
}

// IsModerator reports whether the account holds the moderator role.
func (u User) IsModerator() bool {
	return u.Role == RoleModerator
}

// IsStaff reports whether the account may perform object-level moderation:
// superusers, admins, and moderators.
func (u User) IsStaff() bool {
	return u.Superuser || u.Role == RoleAdmin || u.Role == RoleModerator
}

// Category groups titles by medium (film, book, music). The slug is the public
// lookup key.
type Category struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Genre tags titles; a title can carry any number of genres. The slug is the
// public lookup key.
type Genre struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Title is a catalogued media work. CategorySlug is nil when the title has no
// category or its category was deleted; GenreSlugs references genres by slug.
type Title struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Year         int       `json:"year"`
	Description  string    `json:"description,omitempty"`
	CategorySlug *string   `json:"categorySlug,omitempty"`
	GenreSlugs   []string  `json:"genreSlugs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Review is a scored write-up of a title. A given author may review a given
// title at most once; PubDate is fixed at creation.
type Review struct {
	ID       string    `json:"id"`
	TitleID  string    `json:"titleId"`
	AuthorID string    `json:"authorId"`
	Text     string    `json:"text"`
	Score    int       `json:"score"`
	PubDate  time.Time `json:"pubDate"`
}

// Comment is a reply attached to a review. Comments are removed together with
// their review.
type Comment struct {
	ID       string    `json:"id"`
	ReviewID string    `json:"reviewId"`
	AuthorID string    `json:"authorId"`
	Text     string    `json:"text"`
	PubDate  time.Time `json:"pubDate"`
}

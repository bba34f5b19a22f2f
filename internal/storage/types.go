package storage

import (
	"regexp"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

const (
	// ReservedUsername may never be registered; the path /users/me addresses
	// the caller's own profile instead.
	ReservedUsername = "me"

	maxUsernameLength    = 150
	maxEmailLength       = 254
	maxNameLength        = 200
	maxSlugLength        = 50
	maxBioLength         = 2000
	maxReviewTextLength  = 10000
	maxCommentTextLength = 2000

	// MinScore and MaxScore bound the review score range.
	MinScore = 1
	MaxScore = 10
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+_-]+$`)
	slugPattern     = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type dataset struct {
	Users      map[string]models.User     `json:"users"`
	Categories map[string]models.Category `json:"categories"`
	Genres     map[string]models.Genre    `json:"genres"`
	Titles     map[string]models.Title    `json:"titles"`
	Reviews    map[string]models.Review   `json:"reviews"`
	Comments   map[string]models.Comment  `json:"comments"`
}

func newDataset() dataset {
	return dataset{
		Users:      make(map[string]models.User),
		Categories: make(map[string]models.Category),
		Genres:     make(map[string]models.Genre),
		Titles:     make(map[string]models.Title),
		Reviews:    make(map[string]models.Review),
		Comments:   make(map[string]models.Comment),
	}
}

// CreateUserParams captures the attributes an administrator can set when
// provisioning an account directly.
type CreateUserParams struct {
	Username  string
	Email     string
	Role      models.Role
	FirstName string
	LastName  string
	Bio       string
	Superuser bool
}

// UserUpdate describes the mutable fields of a user record. Nil fields are
// left untouched. Role changes flow only through the admin endpoints; the
// own-profile handler never sets it.
type UserUpdate struct {
	Username  *string
	Email     *string
	Role      *models.Role
	FirstName *string
	LastName  *string
	Bio       *string
}

// SlugEntryUpdate describes the mutable fields of a category or genre.
type SlugEntryUpdate struct {
	Name *string
	Slug *string
}

// CreateTitleParams captures a new catalog entry. CategorySlug and GenreSlugs
// reference existing categories/genres by slug.
type CreateTitleParams struct {
	Name         string
	Year         int
	Description  string
	CategorySlug *string
	GenreSlugs   []string
}

// TitleUpdate describes the mutable fields of a title. Setting CategorySlug to
// a pointer at the empty string clears the category.
type TitleUpdate struct {
	Name         *string
	Year         *int
	Description  *string
	CategorySlug *string
	GenreSlugs   *[]string
}

// TitleFilter narrows title listings. Zero values are ignored.
type TitleFilter struct {
	Category string
	Genre    string
	Name     string
	Year     *int
	Limit    int
	Offset   int
}

// TitleWithRating composes a title with its derived average review score.
// Rating is nil while the title has no reviews.
type TitleWithRating struct {
	models.Title
	Rating *int
}

// ReviewUpdate describes the mutable fields of a review; author, title, and
// publication date are fixed at creation.
type ReviewUpdate struct {
	Text  *string
	Score *int
}

// CommentUpdate describes the mutable fields of a comment.
type CommentUpdate struct {
	Text *string
}

func clampPage(limit, offset, total int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if limit <= 0 || offset+limit > total {
		limit = total - offset
	}
	return limit, offset
}

func nowUTC() time.Time { return time.Now().UTC() }

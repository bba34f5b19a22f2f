package storage

import (
	"context"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

// Repository exposes the datastore operations required by the API handlers
// and the auxiliary command-line tools. Two implementations exist: the
// JSON-file backed Storage used in development and tests, and the Postgres
// repository used in production.
type Repository interface {
	Ping(ctx context.Context) error

	// RegisterUser implements signup's get-or-create contract: when username
	// and email both match one existing account it is returned unchanged
	// (created=false) so a fresh confirmation code can be issued; a conflict
	// on either field alone is a validation error.
	RegisterUser(username, email string) (user models.User, created bool, err error)
	CreateUser(params CreateUserParams) (models.User, error)
	GetUser(id string) (models.User, bool)
	GetUserByUsername(username string) (models.User, bool)
	ListUsers(limit, offset int) []models.User
	UpdateUser(username string, update UserUpdate) (models.User, error)
	DeleteUser(username string) error

	// SetConfirmation stores the hashed confirmation code together with the
	// fingerprint of the user state it was bound to; ClearConfirmation
	// consumes it.
	SetConfirmation(userID, codeHash, stateFingerprint string) error
	ClearConfirmation(userID string) error

	CreateCategory(name, slug string) (models.Category, error)
	GetCategory(slug string) (models.Category, bool)
	ListCategories(search string, limit, offset int) []models.Category
	UpdateCategory(slug string, update SlugEntryUpdate) (models.Category, error)
	DeleteCategory(slug string) error

	CreateGenre(name, slug string) (models.Genre, error)
	GetGenre(slug string) (models.Genre, bool)
	ListGenres(search string, limit, offset int) []models.Genre
	UpdateGenre(slug string, update SlugEntryUpdate) (models.Genre, error)
	DeleteGenre(slug string) error

	CreateTitle(params CreateTitleParams) (models.Title, error)
	GetTitle(id string) (TitleWithRating, bool)
	ListTitles(filter TitleFilter) []TitleWithRating
	UpdateTitle(id string, update TitleUpdate) (models.Title, error)
	DeleteTitle(id string) error

	CreateReview(titleID, authorID, text string, score int) (models.Review, error)
	GetReview(titleID, reviewID string) (models.Review, error)
	ListReviews(titleID string, limit, offset int) ([]models.Review, error)
	UpdateReview(titleID, reviewID string, update ReviewUpdate) (models.Review, error)
	DeleteReview(titleID, reviewID string) error

	CreateComment(titleID, reviewID, authorID, text string) (models.Comment, error)
	GetComment(titleID, reviewID, commentID string) (models.Comment, error)
	ListComments(titleID, reviewID string, limit, offset int) ([]models.Comment, error)
	UpdateComment(titleID, reviewID, commentID string, update CommentUpdate) (models.Comment, error)
	DeleteComment(titleID, reviewID, commentID string) error
}

var (
	_ Repository = (*Storage)(nil)
	_ Repository = (*postgresRepository)(nil)
)

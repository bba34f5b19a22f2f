package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

// schemaStatements is applied in order by EnsureSchema. The slug foreign keys
// cascade on update so category and genre renames propagate; deletes follow
// the catalog rules (category detaches, everything else cascades).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		superuser BOOLEAN NOT NULL DEFAULT FALSE,
		confirmation_hash TEXT NOT NULL DEFAULT '',
		confirmation_state TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT users_email_key UNIQUE (email)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (lower(username))`,
	`CREATE TABLE IF NOT EXISTS categories (
		slug TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		CONSTRAINT categories_name_key UNIQUE (name)
	)`,
	`CREATE TABLE IF NOT EXISTS genres (
		slug TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		CONSTRAINT genres_name_key UNIQUE (name)
	)`,
	`CREATE TABLE IF NOT EXISTS titles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		year INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_slug TEXT REFERENCES categories(slug) ON DELETE SET NULL ON UPDATE CASCADE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS title_genres (
		title_id TEXT NOT NULL REFERENCES titles(id) ON DELETE CASCADE,
		genre_slug TEXT NOT NULL REFERENCES genres(slug) ON DELETE CASCADE ON UPDATE CASCADE,
		PRIMARY KEY (title_id, genre_slug)
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		title_id TEXT NOT NULL REFERENCES titles(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 10),
		pub_date TIMESTAMPTZ NOT NULL,
		CONSTRAINT reviews_title_author_key UNIQUE (title_id, author_id)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		review_id TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		pub_date TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reviews_title_idx ON reviews (title_id)`,
	`CREATE INDEX IF NOT EXISTS comments_review_idx ON comments (review_id)`,
}

// EnsureSchema applies the schema to the repository's database. Statements
// are idempotent so repeated startups are safe.
func EnsureSchema(ctx context.Context, repo Repository) error {
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for schema migration")
	}
	for _, stmt := range schemaStatements {
		if _, err := pgRepo.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if err := importSnapshotUsers(ctx, tx, snapshot.Users); err != nil {
		return err
	}
	if err := importSnapshotCategories(ctx, tx, snapshot.Categories); err != nil {
		return err
	}
	if err := importSnapshotGenres(ctx, tx, snapshot.Genres); err != nil {
		return err
	}
	if err := importSnapshotTitles(ctx, tx, snapshot.Titles); err != nil {
		return err
	}
	if err := importSnapshotReviews(ctx, tx, snapshot.Reviews); err != nil {
		return err
	}
	if err := importSnapshotComments(ctx, tx, snapshot.Comments); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func snapshotTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

func importSnapshotUsers(ctx context.Context, tx pgx.Tx, users map[string]models.User) error {
	for _, key := range sortedKeys(users) {
		user := users[key]
		id := strings.TrimSpace(user.ID)
		if id == "" {
			id = key
		}
		role := user.Role
		if role == "" {
			role = models.RoleUser
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(user.Username), strings.TrimSpace(strings.ToLower(user.Email)),
			string(role), user.FirstName, user.LastName, user.Bio, user.Superuser,
			user.ConfirmationHash, user.ConfirmationState, snapshotTime(user.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert user %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotCategories(ctx context.Context, tx pgx.Tx, categories map[string]models.Category) error {
	for _, key := range sortedKeys(categories) {
		category := categories[key]
		slug := category.Slug
		if slug == "" {
			slug = key
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO categories (slug, name) VALUES ($1, $2) ON CONFLICT (slug) DO NOTHING",
			slug, strings.TrimSpace(category.Name))
		if err != nil {
			return fmt.Errorf("insert category %s: %w", slug, err)
		}
	}
	return nil
}

func importSnapshotGenres(ctx context.Context, tx pgx.Tx, genres map[string]models.Genre) error {
	for _, key := range sortedKeys(genres) {
		genre := genres[key]
		slug := genre.Slug
		if slug == "" {
			slug = key
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO genres (slug, name) VALUES ($1, $2) ON CONFLICT (slug) DO NOTHING",
			slug, strings.TrimSpace(genre.Name))
		if err != nil {
			return fmt.Errorf("insert genre %s: %w", slug, err)
		}
	}
	return nil
}

func importSnapshotTitles(ctx context.Context, tx pgx.Tx, titles map[string]models.Title) error {
	for _, key := range sortedKeys(titles) {
		title := titles[key]
		id := strings.TrimSpace(title.ID)
		if id == "" {
			id = key
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO titles (id, name, year, description, category_slug, created_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(title.Name), title.Year, title.Description,
			title.CategorySlug, snapshotTime(title.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert title %s: %w", id, err)
		}
		for _, slug := range title.GenreSlugs {
			_, err := tx.Exec(ctx,
				"INSERT INTO title_genres (title_id, genre_slug) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				id, slug)
			if err != nil {
				return fmt.Errorf("insert title genre %s/%s: %w", id, slug, err)
			}
		}
	}
	return nil
}

func importSnapshotReviews(ctx context.Context, tx pgx.Tx, reviews map[string]models.Review) error {
	for _, key := range sortedKeys(reviews) {
		review := reviews[key]
		id := strings.TrimSpace(review.ID)
		if id == "" {
			id = key
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO reviews (id, title_id, author_id, text, score, pub_date) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING",
			id, review.TitleID, review.AuthorID, review.Text, review.Score, snapshotTime(review.PubDate))
		if err != nil {
			return fmt.Errorf("insert review %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotComments(ctx context.Context, tx pgx.Tx, comments map[string]models.Comment) error {
	for _, key := range sortedKeys(comments) {
		comment := comments[key]
		id := strings.TrimSpace(comment.ID)
		if id == "" {
			id = key
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO comments (id, review_id, author_id, text, pub_date) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING",
			id, comment.ReviewID, comment.AuthorID, comment.Text, snapshotTime(comment.PubDate))
		if err != nil {
			return fmt.Errorf("insert comment %s: %w", id, err)
		}
	}
	return nil
}

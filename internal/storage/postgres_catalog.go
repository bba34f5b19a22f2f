package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

// Categories

func (r *postgresRepository) CreateCategory(name, slug string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if err := validateSlugEntry(name, slug); err != nil {
		return models.Category{}, err
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	if _, err := r.pool.Exec(ctx,
		"INSERT INTO categories (slug, name) VALUES ($1, $2)", slug, name); err != nil {
		return models.Category{}, translateConstraint(err)
	}
	return models.Category{Name: name, Slug: slug}, nil
}

func (r *postgresRepository) GetCategory(slug string) (models.Category, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var category models.Category
	err := r.pool.QueryRow(ctx,
		"SELECT slug, name FROM categories WHERE slug = $1", slug).
		Scan(&category.Slug, &category.Name)
	if err != nil {
		return models.Category{}, false
	}
	return category, true
}

func (r *postgresRepository) ListCategories(search string, limit, offset int) []models.Category {
	rows := r.listSlugEntries("categories", search, limit, offset)
	categories := make([]models.Category, len(rows))
	for i, row := range rows {
		categories[i] = models.Category{Slug: row[0], Name: row[1]}
	}
	return categories
}

func (r *postgresRepository) UpdateCategory(slug string, update SlugEntryUpdate) (models.Category, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var category models.Category
	err := r.pool.QueryRow(ctx,
		"SELECT slug, name FROM categories WHERE slug = $1", slug).
		Scan(&category.Slug, &category.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Category{}, notFound("category", slug)
	}
	if err != nil {
		return models.Category{}, fmt.Errorf("look up category: %w", err)
	}

	if update.Name != nil {
		category.Name = strings.TrimSpace(*update.Name)
	}
	if update.Slug != nil {
		category.Slug = *update.Slug
	}
	if err := validateSlugEntry(category.Name, category.Slug); err != nil {
		return models.Category{}, err
	}

	// The title FK cascades on slug renames.
	if _, err := r.pool.Exec(ctx,
		"UPDATE categories SET slug = $2, name = $3 WHERE slug = $1",
		slug, category.Slug, category.Name); err != nil {
		return models.Category{}, translateConstraint(err)
	}
	return category, nil
}

func (r *postgresRepository) DeleteCategory(slug string) error {
	return r.deleteSlugEntry("categories", "category", slug)
}

// Genres

func (r *postgresRepository) CreateGenre(name, slug string) (models.Genre, error) {
	name = strings.TrimSpace(name)
	if err := validateSlugEntry(name, slug); err != nil {
		return models.Genre{}, err
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	if _, err := r.pool.Exec(ctx,
		"INSERT INTO genres (slug, name) VALUES ($1, $2)", slug, name); err != nil {
		return models.Genre{}, translateConstraint(err)
	}
	return models.Genre{Name: name, Slug: slug}, nil
}

func (r *postgresRepository) GetGenre(slug string) (models.Genre, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var genre models.Genre
	err := r.pool.QueryRow(ctx,
		"SELECT slug, name FROM genres WHERE slug = $1", slug).
		Scan(&genre.Slug, &genre.Name)
	if err != nil {
		return models.Genre{}, false
	}
	return genre, true
}

func (r *postgresRepository) ListGenres(search string, limit, offset int) []models.Genre {
	rows := r.listSlugEntries("genres", search, limit, offset)
	genres := make([]models.Genre, len(rows))
	for i, row := range rows {
		genres[i] = models.Genre{Slug: row[0], Name: row[1]}
	}
	return genres
}

func (r *postgresRepository) UpdateGenre(slug string, update SlugEntryUpdate) (models.Genre, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var genre models.Genre
	err := r.pool.QueryRow(ctx,
		"SELECT slug, name FROM genres WHERE slug = $1", slug).
		Scan(&genre.Slug, &genre.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Genre{}, notFound("genre", slug)
	}
	if err != nil {
		return models.Genre{}, fmt.Errorf("look up genre: %w", err)
	}

	if update.Name != nil {
		genre.Name = strings.TrimSpace(*update.Name)
	}
	if update.Slug != nil {
		genre.Slug = *update.Slug
	}
	if err := validateSlugEntry(genre.Name, genre.Slug); err != nil {
		return models.Genre{}, err
	}

	if _, err := r.pool.Exec(ctx,
		"UPDATE genres SET slug = $2, name = $3 WHERE slug = $1",
		slug, genre.Slug, genre.Name); err != nil {
		return models.Genre{}, translateConstraint(err)
	}
	return genre, nil
}

func (r *postgresRepository) DeleteGenre(slug string) error {
	return r.deleteSlugEntry("genres", "genre", slug)
}

// listSlugEntries serves both lookup tables; table is one of the two fixed
// names, never caller input.
func (r *postgresRepository) listSlugEntries(table, search string, limit, offset int) [][2]string {
	ctx, cancel := r.opCtx()
	defer cancel()

	if offset < 0 {
		offset = 0
	}
	query := "SELECT slug, name FROM " + table
	args := []any{}
	if search != "" {
		query += " WHERE name ILIKE '%' || $1 || '%'"
		args = append(args, search)
	}
	query += fmt.Sprintf(" ORDER BY name OFFSET $%d", len(args)+1)
	args = append(args, offset)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	entries := make([][2]string, 0)
	for rows.Next() {
		var entry [2]string
		if err := rows.Scan(&entry[0], &entry[1]); err != nil {
			return nil
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil
	}
	return entries
}

func (r *postgresRepository) deleteSlugEntry(table, resource, slug string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM "+table+" WHERE slug = $1", slug)
	if err != nil {
		return fmt.Errorf("delete %s: %w", resource, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(resource, slug)
	}
	return nil
}

// Titles

func (r *postgresRepository) validateYear(year int) error {
	if year < 0 {
		return invalidf("year", "must not be negative")
	}
	if current := r.now().Year(); year > current {
		return invalidf("year", "%d is in the future (current year is %d)", year, current)
	}
	return nil
}

func dedupeSlugs(slugs []string) []string {
	if len(slugs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(slugs))
	out := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

func (r *postgresRepository) CreateTitle(params CreateTitleParams) (models.Title, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Title{}, invalidf("name", "is required")
	}
	if err := r.validateYear(params.Year); err != nil {
		return models.Title{}, err
	}
	var categorySlug *string
	if params.CategorySlug != nil && *params.CategorySlug != "" {
		slug := *params.CategorySlug
		categorySlug = &slug
	}
	genreSlugs := dedupeSlugs(params.GenreSlugs)

	id, err := generateID()
	if err != nil {
		return models.Title{}, err
	}
	title := models.Title{
		ID:           id,
		Name:         name,
		Year:         params.Year,
		Description:  params.Description,
		CategorySlug: categorySlug,
		GenreSlugs:   genreSlugs,
		CreatedAt:    r.now(),
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Title{}, fmt.Errorf("begin title insert: %w", err)
	}
	defer rollbackTx(ctx, tx)

	_, err = tx.Exec(ctx,
		"INSERT INTO titles (id, name, year, description, category_slug, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		title.ID, title.Name, title.Year, title.Description, title.CategorySlug, title.CreatedAt)
	if err != nil {
		return models.Title{}, r.translateTitleRefs(ctx, err, categorySlug, genreSlugs)
	}
	for _, slug := range genreSlugs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO title_genres (title_id, genre_slug) VALUES ($1, $2)", title.ID, slug); err != nil {
			return models.Title{}, r.translateTitleRefs(ctx, err, categorySlug, genreSlugs)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Title{}, fmt.Errorf("commit title insert: %w", err)
	}
	return title, nil
}

// translateTitleRefs turns FK violations on title writes into the field-level
// validation errors the handlers report, identifying which slug was unknown.
func (r *postgresRepository) translateTitleRefs(ctx context.Context, err error, categorySlug *string, genreSlugs []string) error {
	translated := translateConstraint(err)
	if !IsValidation(translated) {
		return translated
	}
	if categorySlug != nil {
		var exists bool
		if lookupErr := r.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM categories WHERE slug = $1)", *categorySlug).
			Scan(&exists); lookupErr == nil && !exists {
			return invalidf("category", "unknown slug %q", *categorySlug)
		}
	}
	for _, slug := range genreSlugs {
		var exists bool
		if lookupErr := r.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM genres WHERE slug = $1)", slug).
			Scan(&exists); lookupErr == nil && !exists {
			return invalidf("genre", "unknown slug %q", slug)
		}
	}
	return translated
}

const titleColumns = `t.id, t.name, t.year, t.description, t.category_slug, t.created_at,
CASE WHEN COUNT(r.id) = 0 THEN NULL ELSE CAST(ROUND(AVG(r.score)) AS INT) END AS rating`

const titleGroupBy = "GROUP BY t.id, t.name, t.year, t.description, t.category_slug, t.created_at"

func scanTitleWithRating(rows pgx.Row) (TitleWithRating, error) {
	var title TitleWithRating
	err := rows.Scan(&title.ID, &title.Name, &title.Year, &title.Description,
		&title.CategorySlug, &title.CreatedAt, &title.Rating)
	if err != nil {
		return TitleWithRating{}, err
	}
	return title, nil
}

func (r *postgresRepository) loadTitleGenres(ctx context.Context, titleIDs []string) (map[string][]string, error) {
	if len(titleIDs) == 0 {
		return map[string][]string{}, nil
	}
	rows, err := r.pool.Query(ctx,
		"SELECT title_id, genre_slug FROM title_genres WHERE title_id = ANY($1) ORDER BY genre_slug", titleIDs)
	if err != nil {
		return nil, fmt.Errorf("load title genres: %w", err)
	}
	defer rows.Close()

	genres := make(map[string][]string, len(titleIDs))
	for rows.Next() {
		var titleID, slug string
		if err := rows.Scan(&titleID, &slug); err != nil {
			return nil, fmt.Errorf("scan title genre: %w", err)
		}
		genres[titleID] = append(genres[titleID], slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate title genres: %w", err)
	}
	return genres, nil
}

func (r *postgresRepository) GetTitle(id string) (TitleWithRating, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()

	title, err := scanTitleWithRating(r.pool.QueryRow(ctx,
		"SELECT "+titleColumns+" FROM titles t LEFT JOIN reviews r ON r.title_id = t.id WHERE t.id = $1 "+titleGroupBy, id))
	if err != nil {
		return TitleWithRating{}, false
	}
	genres, err := r.loadTitleGenres(ctx, []string{title.ID})
	if err != nil {
		return TitleWithRating{}, false
	}
	title.GenreSlugs = genres[title.ID]
	return title, true
}

func (r *postgresRepository) ListTitles(filter TitleFilter) []TitleWithRating {
	ctx, cancel := r.opCtx()
	defer cancel()

	conditions := []string{}
	args := []any{}
	addArg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Category != "" {
		conditions = append(conditions, "t.category_slug = "+addArg(filter.Category))
	}
	if filter.Genre != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM title_genres tg WHERE tg.title_id = t.id AND tg.genre_slug = "+addArg(filter.Genre)+")")
	}
	if filter.Name != "" {
		conditions = append(conditions, "t.name ILIKE '%' || "+addArg(filter.Name)+" || '%'")
	}
	if filter.Year != nil {
		conditions = append(conditions, "t.year = "+addArg(*filter.Year))
	}

	query := "SELECT " + titleColumns + " FROM titles t LEFT JOIN reviews r ON r.title_id = t.id"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " " + titleGroupBy + " ORDER BY t.name, t.id OFFSET " + addArg(max(filter.Offset, 0))
	if filter.Limit > 0 {
		query += " LIMIT " + addArg(filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	titles := make([]TitleWithRating, 0)
	ids := make([]string, 0)
	for rows.Next() {
		title, err := scanTitleWithRating(rows)
		if err != nil {
			return nil
		}
		titles = append(titles, title)
		ids = append(ids, title.ID)
	}
	if rows.Err() != nil {
		return nil
	}

	genres, err := r.loadTitleGenres(ctx, ids)
	if err != nil {
		return nil
	}
	for i := range titles {
		titles[i].GenreSlugs = genres[titles[i].ID]
	}
	return titles
}

func (r *postgresRepository) UpdateTitle(id string, update TitleUpdate) (models.Title, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var title models.Title
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, year, description, category_slug, created_at FROM titles WHERE id = $1", id).
		Scan(&title.ID, &title.Name, &title.Year, &title.Description, &title.CategorySlug, &title.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Title{}, notFound("title", id)
	}
	if err != nil {
		return models.Title{}, fmt.Errorf("look up title: %w", err)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Title{}, invalidf("name", "is required")
		}
		title.Name = name
	}
	if update.Year != nil {
		if err := r.validateYear(*update.Year); err != nil {
			return models.Title{}, err
		}
		title.Year = *update.Year
	}
	if update.Description != nil {
		title.Description = *update.Description
	}
	if update.CategorySlug != nil {
		if *update.CategorySlug == "" {
			title.CategorySlug = nil
		} else {
			slug := *update.CategorySlug
			title.CategorySlug = &slug
		}
	}
	var genreSlugs []string
	if update.GenreSlugs != nil {
		genreSlugs = dedupeSlugs(*update.GenreSlugs)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Title{}, fmt.Errorf("begin title update: %w", err)
	}
	defer rollbackTx(ctx, tx)

	_, err = tx.Exec(ctx,
		"UPDATE titles SET name = $2, year = $3, description = $4, category_slug = $5 WHERE id = $1",
		title.ID, title.Name, title.Year, title.Description, title.CategorySlug)
	if err != nil {
		return models.Title{}, r.translateTitleRefs(ctx, err, title.CategorySlug, genreSlugs)
	}
	if update.GenreSlugs != nil {
		if _, err := tx.Exec(ctx, "DELETE FROM title_genres WHERE title_id = $1", title.ID); err != nil {
			return models.Title{}, fmt.Errorf("clear title genres: %w", err)
		}
		for _, slug := range genreSlugs {
			if _, err := tx.Exec(ctx,
				"INSERT INTO title_genres (title_id, genre_slug) VALUES ($1, $2)", title.ID, slug); err != nil {
				return models.Title{}, r.translateTitleRefs(ctx, err, title.CategorySlug, genreSlugs)
			}
		}
		title.GenreSlugs = genreSlugs
	} else {
		genres, err := r.loadTitleGenres(ctx, []string{title.ID})
		if err != nil {
			return models.Title{}, err
		}
		title.GenreSlugs = genres[title.ID]
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Title{}, fmt.Errorf("commit title update: %w", err)
	}
	sort.Strings(title.GenreSlugs)
	return title, nil
}

func (r *postgresRepository) DeleteTitle(id string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM titles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("title", id)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

// Storage is the JSON-file backed datastore. All invariants the relational
// schema enforces in production are checked here under a single RWMutex:
// case-insensitive username uniqueness, the reserved "me" name, email
// uniqueness, one review per (title, author) pair, the score range, the
// year-not-in-the-future rule, and the delete cascades.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

// NewStorage opens (or creates) the JSON datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path, data: newDataset(), now: nowUTC}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	if s.filePath == "" {
		return nil
	}
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read datastore: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var data dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode datastore: %w", err)
	}
	s.data = data
	s.ensureInitialized()
	return nil
}

func (s *Storage) ensureInitialized() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Categories == nil {
		s.data.Categories = make(map[string]models.Category)
	}
	if s.data.Genres == nil {
		s.data.Genres = make(map[string]models.Genre)
	}
	if s.data.Titles == nil {
		s.data.Titles = make(map[string]models.Title)
	}
	if s.data.Reviews == nil {
		s.data.Reviews = make(map[string]models.Review)
	}
	if s.data.Comments == nil {
		s.data.Comments = make(map[string]models.Comment)
	}
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}
	if s.filePath == "" {
		return nil
	}
	payload, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datastore directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".store-*.json")
	if err != nil {
		return fmt.Errorf("create datastore temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close datastore temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace datastore: %w", err)
	}
	return nil
}

func (d dataset) clone() dataset {
	out := newDataset()
	for id, user := range d.Users {
		out.Users[id] = user
	}
	for slug, category := range d.Categories {
		out.Categories[slug] = category
	}
	for slug, genre := range d.Genres {
		out.Genres[slug] = genre
	}
	for id, title := range d.Titles {
		title.GenreSlugs = append([]string(nil), title.GenreSlugs...)
		out.Titles[id] = title
	}
	for id, review := range d.Reviews {
		out.Reviews[id] = review
	}
	for id, comment := range d.Comments {
		out.Comments[id] = comment
	}
	return out
}

// commit persists the current dataset, restoring backup when the write fails
// so no partial mutation survives a validation or IO failure.
func (s *Storage) commit(backup dataset) error {
	if err := s.persist(); err != nil {
		s.data = backup
		return err
	}
	return nil
}

// Ping reports datastore health; the JSON store is always reachable once
// opened.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Users

func validateUsername(username string) error {
	if username == "" {
		return invalidf("username", "is required")
	}
	if len(username) > maxUsernameLength {
		return invalidf("username", "must be at most %d characters", maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return invalidf("username", "may contain only letters, digits, and @.+-_")
	}
	if strings.EqualFold(username, ReservedUsername) {
		return invalidf("username", "%q is reserved", ReservedUsername)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return "", invalidf("email", "is required")
	}
	if len(normalized) > maxEmailLength {
		return "", invalidf("email", "must be at most %d characters", maxEmailLength)
	}
	if !emailPattern.MatchString(normalized) {
		return "", invalidf("email", "is not a valid address")
	}
	return normalized, nil
}

func (s *Storage) usernameTakenLocked(username, excludeID string) bool {
	for id, user := range s.data.Users {
		if id == excludeID {
			continue
		}
		if strings.EqualFold(user.Username, username) {
			return true
		}
	}
	return false
}

func (s *Storage) emailTakenLocked(email, excludeID string) bool {
	for id, user := range s.data.Users {
		if id == excludeID {
			continue
		}
		if user.Email == email {
			return true
		}
	}
	return false
}

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.TrimSpace(params.Username)
	if err := validateUsername(username); err != nil {
		return models.User{}, err
	}
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return models.User{}, err
	}
	role := params.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return models.User{}, invalidf("role", "%q is not a valid role", string(params.Role))
	}
	if len(params.Bio) > maxBioLength {
		return models.User{}, invalidf("bio", "must be at most %d characters", maxBioLength)
	}
	if s.usernameTakenLocked(username, "") {
		return models.User{}, invalidf("username", "%q is already taken", username)
	}
	if s.emailTakenLocked(email, "") {
		return models.User{}, invalidf("email", "%s is already registered", email)
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		ID:        id,
		Username:  username,
		Email:     email,
		Role:      role,
		FirstName: strings.TrimSpace(params.FirstName),
		LastName:  strings.TrimSpace(params.LastName),
		Bio:       params.Bio,
		Superuser: params.Superuser,
		CreatedAt: s.now(),
	}

	backup := s.data.clone()
	s.data.Users[id] = user
	if err := s.commit(backup); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) RegisterUser(username, email string) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return models.User{}, false, err
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, false, err
	}

	for _, user := range s.data.Users {
		usernameMatch := strings.EqualFold(user.Username, username)
		emailMatch := user.Email == normalized
		switch {
		case usernameMatch && emailMatch:
			return user, false, nil
		case usernameMatch:
			return models.User{}, false, invalidf("username", "%q is already taken", username)
		case emailMatch:
			return models.User{}, false, invalidf("email", "%s is already registered", normalized)
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, false, err
	}
	user := models.User{
		ID:        id,
		Username:  username,
		Email:     normalized,
		Role:      models.RoleUser,
		CreatedAt: s.now(),
	}
	backup := s.data.clone()
	s.data.Users[id] = user
	if err := s.commit(backup); err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

func (s *Storage) GetUserByUsername(username string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userByUsernameLocked(username)
}

func (s *Storage) userByUsernameLocked(username string) (models.User, bool) {
	for _, user := range s.data.Users {
		if strings.EqualFold(user.Username, username) {
			return user, true
		}
	}
	return models.User{}, false
}

func (s *Storage) ListUsers(limit, offset int) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	limit, offset = clampPage(limit, offset, len(users))
	return users[offset : offset+limit]
}

func (s *Storage) UpdateUser(username string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.userByUsernameLocked(username)
	if !ok {
		return models.User{}, notFound("user", username)
	}

	if update.Username != nil {
		next := strings.TrimSpace(*update.Username)
		if err := validateUsername(next); err != nil {
			return models.User{}, err
		}
		if s.usernameTakenLocked(next, user.ID) {
			return models.User{}, invalidf("username", "%q is already taken", next)
		}
		user.Username = next
	}
	if update.Email != nil {
		normalized, err := normalizeEmail(*update.Email)
		if err != nil {
			return models.User{}, err
		}
		if s.emailTakenLocked(normalized, user.ID) {
			return models.User{}, invalidf("email", "%s is already registered", normalized)
		}
		user.Email = normalized
	}
	if update.Role != nil {
		if !update.Role.Valid() {
			return models.User{}, invalidf("role", "%q is not a valid role", string(*update.Role))
		}
		user.Role = *update.Role
	}
	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Bio != nil {
		if len(*update.Bio) > maxBioLength {
			return models.User{}, invalidf("bio", "must be at most %d characters", maxBioLength)
		}
		user.Bio = *update.Bio
	}

	backup := s.data.clone()
	s.data.Users[user.ID] = user
	if err := s.commit(backup); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.userByUsernameLocked(username)
	if !ok {
		return notFound("user", username)
	}

	backup := s.data.clone()
	for id, review := range s.data.Reviews {
		if review.AuthorID != user.ID {
			continue
		}
		delete(s.data.Reviews, id)
		s.deleteCommentsOfReviewLocked(id)
	}
	for id, comment := range s.data.Comments {
		if comment.AuthorID == user.ID {
			delete(s.data.Comments, id)
		}
	}
	delete(s.data.Users, user.ID)
	return s.commit(backup)
}

func (s *Storage) SetConfirmation(userID, codeHash, stateFingerprint string) error {
	return s.updateConfirmation(userID, codeHash, stateFingerprint)
}

func (s *Storage) ClearConfirmation(userID string) error {
	return s.updateConfirmation(userID, "", "")
}

func (s *Storage) updateConfirmation(userID, codeHash, stateFingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return notFound("user", userID)
	}
	user.ConfirmationHash = codeHash
	user.ConfirmationState = stateFingerprint

	backup := s.data.clone()
	s.data.Users[userID] = user
	return s.commit(backup)
}

// Categories and genres

func validateSlugEntry(name, slug string) error {
	if strings.TrimSpace(name) == "" {
		return invalidf("name", "is required")
	}
	if len(name) > maxNameLength {
		return invalidf("name", "must be at most %d characters", maxNameLength)
	}
	if slug == "" {
		return invalidf("slug", "is required")
	}
	if len(slug) > maxSlugLength {
		return invalidf("slug", "must be at most %d characters", maxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return invalidf("slug", "may contain only letters, digits, hyphens, and underscores")
	}
	return nil
}

func (s *Storage) CreateCategory(name, slug string) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if err := validateSlugEntry(name, slug); err != nil {
		return models.Category{}, err
	}
	if _, exists := s.data.Categories[slug]; exists {
		return models.Category{}, invalidf("slug", "%q is already in use", slug)
	}
	for _, category := range s.data.Categories {
		if strings.EqualFold(category.Name, name) {
			return models.Category{}, invalidf("name", "%q is already in use", name)
		}
	}

	category := models.Category{Name: name, Slug: slug}
	backup := s.data.clone()
	s.data.Categories[slug] = category
	if err := s.commit(backup); err != nil {
		return models.Category{}, err
	}
	return category, nil
}

func (s *Storage) GetCategory(slug string) (models.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.data.Categories[slug]
	return category, ok
}

func (s *Storage) ListCategories(search string, limit, offset int) []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]models.Category, 0, len(s.data.Categories))
	for _, category := range s.data.Categories {
		if search != "" && !strings.Contains(strings.ToLower(category.Name), strings.ToLower(search)) {
			continue
		}
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	limit, offset = clampPage(limit, offset, len(categories))
	return categories[offset : offset+limit]
}

func (s *Storage) UpdateCategory(slug string, update SlugEntryUpdate) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.data.Categories[slug]
	if !ok {
		return models.Category{}, notFound("category", slug)
	}
	next := category
	if update.Name != nil {
		next.Name = strings.TrimSpace(*update.Name)
	}
	if update.Slug != nil {
		next.Slug = *update.Slug
	}
	if err := validateSlugEntry(next.Name, next.Slug); err != nil {
		return models.Category{}, err
	}
	if next.Slug != slug {
		if _, exists := s.data.Categories[next.Slug]; exists {
			return models.Category{}, invalidf("slug", "%q is already in use", next.Slug)
		}
	}
	for existingSlug, existing := range s.data.Categories {
		if existingSlug != slug && strings.EqualFold(existing.Name, next.Name) {
			return models.Category{}, invalidf("name", "%q is already in use", next.Name)
		}
	}

	backup := s.data.clone()
	delete(s.data.Categories, slug)
	s.data.Categories[next.Slug] = next
	if next.Slug != slug {
		for id, title := range s.data.Titles {
			if title.CategorySlug != nil && *title.CategorySlug == slug {
				moved := next.Slug
				title.CategorySlug = &moved
				s.data.Titles[id] = title
			}
		}
	}
	if err := s.commit(backup); err != nil {
		return models.Category{}, err
	}
	return next, nil
}

// DeleteCategory removes the category and detaches it from any titles that
// referenced it; the titles themselves survive.
func (s *Storage) DeleteCategory(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Categories[slug]; !ok {
		return notFound("category", slug)
	}

	backup := s.data.clone()
	delete(s.data.Categories, slug)
	for id, title := range s.data.Titles {
		if title.CategorySlug != nil && *title.CategorySlug == slug {
			title.CategorySlug = nil
			s.data.Titles[id] = title
		}
	}
	return s.commit(backup)
}

func (s *Storage) CreateGenre(name, slug string) (models.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if err := validateSlugEntry(name, slug); err != nil {
		return models.Genre{}, err
	}
	if _, exists := s.data.Genres[slug]; exists {
		return models.Genre{}, invalidf("slug", "%q is already in use", slug)
	}
	for _, genre := range s.data.Genres {
		if strings.EqualFold(genre.Name, name) {
			return models.Genre{}, invalidf("name", "%q is already in use", name)
		}
	}

	genre := models.Genre{Name: name, Slug: slug}
	backup := s.data.clone()
	s.data.Genres[slug] = genre
	if err := s.commit(backup); err != nil {
		return models.Genre{}, err
	}
	return genre, nil
}

func (s *Storage) GetGenre(slug string) (models.Genre, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	genre, ok := s.data.Genres[slug]
	return genre, ok
}

func (s *Storage) ListGenres(search string, limit, offset int) []models.Genre {
	s.mu.RLock()
	defer s.mu.RUnlock()

	genres := make([]models.Genre, 0, len(s.data.Genres))
	for _, genre := range s.data.Genres {
		if search != "" && !strings.Contains(strings.ToLower(genre.Name), strings.ToLower(search)) {
			continue
		}
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool { return genres[i].Name < genres[j].Name })
	limit, offset = clampPage(limit, offset, len(genres))
	return genres[offset : offset+limit]
}

func (s *Storage) UpdateGenre(slug string, update SlugEntryUpdate) (models.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	genre, ok := s.data.Genres[slug]
	if !ok {
		return models.Genre{}, notFound("genre", slug)
	}
	next := genre
	if update.Name != nil {
		next.Name = strings.TrimSpace(*update.Name)
	}
	if update.Slug != nil {
		next.Slug = *update.Slug
	}
	if err := validateSlugEntry(next.Name, next.Slug); err != nil {
		return models.Genre{}, err
	}
	if next.Slug != slug {
		if _, exists := s.data.Genres[next.Slug]; exists {
			return models.Genre{}, invalidf("slug", "%q is already in use", next.Slug)
		}
	}
	for existingSlug, existing := range s.data.Genres {
		if existingSlug != slug && strings.EqualFold(existing.Name, next.Name) {
			return models.Genre{}, invalidf("name", "%q is already in use", next.Name)
		}
	}

	backup := s.data.clone()
	delete(s.data.Genres, slug)
	s.data.Genres[next.Slug] = next
	if next.Slug != slug {
		for id, title := range s.data.Titles {
			// Titles handed out by GetTitle/ListTitles alias this slice;
			// rewrite into a fresh one instead of editing in place.
			changed := false
			renamed := make([]string, len(title.GenreSlugs))
			for i, genreSlug := range title.GenreSlugs {
				renamed[i] = genreSlug
				if genreSlug == slug {
					renamed[i] = next.Slug
					changed = true
				}
			}
			if changed {
				title.GenreSlugs = renamed
				s.data.Titles[id] = title
			}
		}
	}
	if err := s.commit(backup); err != nil {
		return models.Genre{}, err
	}
	return next, nil
}

// DeleteGenre removes the genre and drops it from the genre list of any title
// that carried it.
func (s *Storage) DeleteGenre(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Genres[slug]; !ok {
		return notFound("genre", slug)
	}

	backup := s.data.clone()
	delete(s.data.Genres, slug)
	for id, title := range s.data.Titles {
		// Filtering must not touch the existing backing array: titles handed
		// out by GetTitle/ListTitles alias it.
		kept := make([]string, 0, len(title.GenreSlugs))
		changed := false
		for _, genreSlug := range title.GenreSlugs {
			if genreSlug == slug {
				changed = true
				continue
			}
			kept = append(kept, genreSlug)
		}
		if changed {
			title.GenreSlugs = kept
			s.data.Titles[id] = title
		}
	}
	return s.commit(backup)
}

// Titles

// validateYear re-checks the calendar rule at request time: the storage-layer
// constraint cannot know the current wall-clock year.
func (s *Storage) validateYear(year int) error {
	if year < 0 {
		return invalidf("year", "must not be negative")
	}
	if current := s.now().Year(); year > current {
		return invalidf("year", "%d is in the future (current year is %d)", year, current)
	}
	return nil
}

func (s *Storage) resolveGenreSlugsLocked(slugs []string) ([]string, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(slugs))
	resolved := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if _, ok := s.data.Genres[slug]; !ok {
			return nil, invalidf("genre", "unknown slug %q", slug)
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		resolved = append(resolved, slug)
	}
	return resolved, nil
}

func (s *Storage) CreateTitle(params CreateTitleParams) (models.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Title{}, invalidf("name", "is required")
	}
	if err := s.validateYear(params.Year); err != nil {
		return models.Title{}, err
	}
	var categorySlug *string
	if params.CategorySlug != nil && *params.CategorySlug != "" {
		if _, ok := s.data.Categories[*params.CategorySlug]; !ok {
			return models.Title{}, invalidf("category", "unknown slug %q", *params.CategorySlug)
		}
		slug := *params.CategorySlug
		categorySlug = &slug
	}
	genreSlugs, err := s.resolveGenreSlugsLocked(params.GenreSlugs)
	if err != nil {
		return models.Title{}, err
	}

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
		CreatedAt:    s.now(),
	}

	backup := s.data.clone()
	s.data.Titles[id] = title
	if err := s.commit(backup); err != nil {
		return models.Title{}, err
	}
	return title, nil
}

func (s *Storage) ratingLocked(titleID string) *int {
	var sum, count int
	for _, review := range s.data.Reviews {
		if review.TitleID == titleID {
			sum += review.Score
			count++
		}
	}
	if count == 0 {
		return nil
	}
	rating := int(math.Round(float64(sum) / float64(count)))
	return &rating
}

func (s *Storage) GetTitle(id string) (TitleWithRating, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	title, ok := s.data.Titles[id]
	if !ok {
		return TitleWithRating{}, false
	}
	return TitleWithRating{Title: title, Rating: s.ratingLocked(id)}, true
}

func (s *Storage) ListTitles(filter TitleFilter) []TitleWithRating {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make([]TitleWithRating, 0, len(s.data.Titles))
	for id, title := range s.data.Titles {
		if filter.Category != "" {
			if title.CategorySlug == nil || *title.CategorySlug != filter.Category {
				continue
			}
		}
		if filter.Genre != "" {
			found := false
			for _, slug := range title.GenreSlugs {
				if slug == filter.Genre {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(title.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Year != nil && title.Year != *filter.Year {
			continue
		}
		titles = append(titles, TitleWithRating{Title: title, Rating: s.ratingLocked(id)})
	}
	sort.Slice(titles, func(i, j int) bool {
		if titles[i].Name != titles[j].Name {
			return titles[i].Name < titles[j].Name
		}
		return titles[i].ID < titles[j].ID
	})
	limit, offset := clampPage(filter.Limit, filter.Offset, len(titles))
	return titles[offset : offset+limit]
}

func (s *Storage) UpdateTitle(id string, update TitleUpdate) (models.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title, ok := s.data.Titles[id]
	if !ok {
		return models.Title{}, notFound("title", id)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Title{}, invalidf("name", "is required")
		}
		title.Name = name
	}
	if update.Year != nil {
		if err := s.validateYear(*update.Year); err != nil {
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
			if _, exists := s.data.Categories[*update.CategorySlug]; !exists {
				return models.Title{}, invalidf("category", "unknown slug %q", *update.CategorySlug)
			}
			slug := *update.CategorySlug
			title.CategorySlug = &slug
		}
	}
	if update.GenreSlugs != nil {
		resolved, err := s.resolveGenreSlugsLocked(*update.GenreSlugs)
		if err != nil {
			return models.Title{}, err
		}
		title.GenreSlugs = resolved
	}

	backup := s.data.clone()
	s.data.Titles[id] = title
	if err := s.commit(backup); err != nil {
		return models.Title{}, err
	}
	return title, nil
}

// DeleteTitle removes the title together with its reviews and their comments.
func (s *Storage) DeleteTitle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Titles[id]; !ok {
		return notFound("title", id)
	}

	backup := s.data.clone()
	delete(s.data.Titles, id)
	for reviewID, review := range s.data.Reviews {
		if review.TitleID != id {
			continue
		}
		delete(s.data.Reviews, reviewID)
		s.deleteCommentsOfReviewLocked(reviewID)
	}
	return s.commit(backup)
}

// Reviews

func validateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return invalidf("score", "must be between %d and %d", MinScore, MaxScore)
	}
	return nil
}

func (s *Storage) CreateReview(titleID, authorID, text string, score int) (models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Titles[titleID]; !ok {
		return models.Review{}, notFound("title", titleID)
	}
	if _, ok := s.data.Users[authorID]; !ok {
		return models.Review{}, notFound("user", authorID)
	}
	if strings.TrimSpace(text) == "" {
		return models.Review{}, invalidf("text", "is required")
	}
	if len(text) > maxReviewTextLength {
		return models.Review{}, invalidf("text", "must be at most %d characters", maxReviewTextLength)
	}
	if err := validateScore(score); err != nil {
		return models.Review{}, err
	}
	for _, review := range s.data.Reviews {
		if review.TitleID == titleID && review.AuthorID == authorID {
			return models.Review{}, invalidf("", "you have already reviewed this title")
		}
	}

	id, err := generateID()
	if err != nil {
		return models.Review{}, err
	}
	review := models.Review{
		ID:       id,
		TitleID:  titleID,
		AuthorID: authorID,
		Text:     text,
		Score:    score,
		PubDate:  s.now(),
	}
	backup := s.data.clone()
	s.data.Reviews[id] = review
	if err := s.commit(backup); err != nil {
		return models.Review{}, err
	}
	return review, nil
}

// reviewScopedLocked resolves a review strictly within the given title; a
// review reached through the wrong title path is indistinguishable from a
// missing one.
func (s *Storage) reviewScopedLocked(titleID, reviewID string) (models.Review, error) {
	if _, ok := s.data.Titles[titleID]; !ok {
		return models.Review{}, notFound("title", titleID)
	}
	review, ok := s.data.Reviews[reviewID]
	if !ok || review.TitleID != titleID {
		return models.Review{}, notFound("review", reviewID)
	}
	return review, nil
}

func (s *Storage) GetReview(titleID, reviewID string) (models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reviewScopedLocked(titleID, reviewID)
}

func (s *Storage) ListReviews(titleID string, limit, offset int) ([]models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Titles[titleID]; !ok {
		return nil, notFound("title", titleID)
	}
	reviews := make([]models.Review, 0)
	for _, review := range s.data.Reviews {
		if review.TitleID == titleID {
			reviews = append(reviews, review)
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].PubDate.Equal(reviews[j].PubDate) {
			return reviews[i].PubDate.Before(reviews[j].PubDate)
		}
		return reviews[i].ID < reviews[j].ID
	})
	limit, offset = clampPage(limit, offset, len(reviews))
	return reviews[offset : offset+limit], nil
}

func (s *Storage) UpdateReview(titleID, reviewID string, update ReviewUpdate) (models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	review, err := s.reviewScopedLocked(titleID, reviewID)
	if err != nil {
		return models.Review{}, err
	}
	if update.Text != nil {
		if strings.TrimSpace(*update.Text) == "" {
			return models.Review{}, invalidf("text", "is required")
		}
		if len(*update.Text) > maxReviewTextLength {
			return models.Review{}, invalidf("text", "must be at most %d characters", maxReviewTextLength)
		}
		review.Text = *update.Text
	}
	if update.Score != nil {
		if err := validateScore(*update.Score); err != nil {
			return models.Review{}, err
		}
		review.Score = *update.Score
	}

	backup := s.data.clone()
	s.data.Reviews[reviewID] = review
	if err := s.commit(backup); err != nil {
		return models.Review{}, err
	}
	return review, nil
}

// DeleteReview removes the review and every comment attached to it.
func (s *Storage) DeleteReview(titleID, reviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reviewScopedLocked(titleID, reviewID); err != nil {
		return err
	}

	backup := s.data.clone()
	delete(s.data.Reviews, reviewID)
	s.deleteCommentsOfReviewLocked(reviewID)
	return s.commit(backup)
}

func (s *Storage) deleteCommentsOfReviewLocked(reviewID string) {
	for id, comment := range s.data.Comments {
		if comment.ReviewID == reviewID {
			delete(s.data.Comments, id)
		}
	}
}

// Comments

func (s *Storage) CreateComment(titleID, reviewID, authorID, text string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reviewScopedLocked(titleID, reviewID); err != nil {
		return models.Comment{}, err
	}
	if _, ok := s.data.Users[authorID]; !ok {
		return models.Comment{}, notFound("user", authorID)
	}
	if strings.TrimSpace(text) == "" {
		return models.Comment{}, invalidf("text", "is required")
	}
	if len(text) > maxCommentTextLength {
		return models.Comment{}, invalidf("text", "must be at most %d characters", maxCommentTextLength)
	}

	id, err := generateID()
	if err != nil {
		return models.Comment{}, err
	}
	comment := models.Comment{
		ID:       id,
		ReviewID: reviewID,
		AuthorID: authorID,
		Text:     text,
		PubDate:  s.now(),
	}
	backup := s.data.clone()
	s.data.Comments[id] = comment
	if err := s.commit(backup); err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

func (s *Storage) commentScopedLocked(titleID, reviewID, commentID string) (models.Comment, error) {
	if _, err := s.reviewScopedLocked(titleID, reviewID); err != nil {
		return models.Comment{}, err
	}
	comment, ok := s.data.Comments[commentID]
	if !ok || comment.ReviewID != reviewID {
		return models.Comment{}, notFound("comment", commentID)
	}
	return comment, nil
}

func (s *Storage) GetComment(titleID, reviewID, commentID string) (models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commentScopedLocked(titleID, reviewID, commentID)
}

func (s *Storage) ListComments(titleID, reviewID string, limit, offset int) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.reviewScopedLocked(titleID, reviewID); err != nil {
		return nil, err
	}
	comments := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.ReviewID == reviewID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].PubDate.Equal(comments[j].PubDate) {
			return comments[i].PubDate.Before(comments[j].PubDate)
		}
		return comments[i].ID < comments[j].ID
	})
	limit, offset = clampPage(limit, offset, len(comments))
	return comments[offset : offset+limit], nil
}

func (s *Storage) UpdateComment(titleID, reviewID, commentID string, update CommentUpdate) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, err := s.commentScopedLocked(titleID, reviewID, commentID)
	if err != nil {
		return models.Comment{}, err
	}
	if update.Text != nil {
		if strings.TrimSpace(*update.Text) == "" {
			return models.Comment{}, invalidf("text", "is required")
		}
		if len(*update.Text) > maxCommentTextLength {
			return models.Comment{}, invalidf("text", "must be at most %d characters", maxCommentTextLength)
		}
		comment.Text = *update.Text
	}

	backup := s.data.clone()
	s.data.Comments[commentID] = comment
	if err := s.commit(backup); err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

func (s *Storage) DeleteComment(titleID, reviewID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.commentScopedLocked(titleID, reviewID, commentID); err != nil {
		return err
	}
	backup := s.data.clone()
	delete(s.data.Comments, commentID)
	return s.commit(backup)
}

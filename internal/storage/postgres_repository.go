package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

const defaultPostgresTimeout = 5 * time.Second

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
	now  func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository. Callers must run
// EnsureSchema before serving traffic.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	return &postgresRepository{pool: pool, cfg: cfg, now: cfg.Clock}, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// opCtx bounds repository operations whose interface signature carries no
// context of its own.
func (r *postgresRepository) opCtx() (context.Context, context.CancelFunc) {
	timeout := r.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = defaultPostgresTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		_ = err
	}
}

// translateConstraint maps unique and foreign-key violations onto the same
// validation errors the JSON store raises, keyed by constraint name.
func translateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case "users_username_lower_idx":
			return invalidf("username", "is already taken")
		case "users_email_key":
			return invalidf("email", "is already registered")
		case "categories_name_key":
			return invalidf("name", "is already in use")
		case "genres_name_key":
			return invalidf("name", "is already in use")
		case "categories_pkey", "genres_pkey":
			return invalidf("slug", "is already in use")
		case "reviews_title_author_key":
			return invalidf("", "you have already reviewed this title")
		}
		return invalidf("", "duplicate value violates %s", pgErr.ConstraintName)
	case "23503":
		return invalidf("", "referenced record does not exist")
	}
	return err
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	return r.pool.Ping(ctx)
}

// Users

const userColumns = "id, username, email, role, first_name, last_name, bio, superuser, confirmation_hash, confirmation_state, created_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var role string
	err := row.Scan(&user.ID, &user.Username, &user.Email, &role, &user.FirstName,
		&user.LastName, &user.Bio, &user.Superuser, &user.ConfirmationHash,
		&user.ConfirmationState, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)
	return user, nil
}

func (r *postgresRepository) insertUser(ctx context.Context, user models.User) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		user.ID, user.Username, user.Email, string(user.Role), user.FirstName,
		user.LastName, user.Bio, user.Superuser, user.ConfirmationHash,
		user.ConfirmationState, user.CreatedAt)
	if err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
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
		CreatedAt: r.now(),
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	if err := r.insertUser(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *postgresRepository) RegisterUser(username, email string) (models.User, bool, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return models.User{}, false, err
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, false, err
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	existing, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(username) = lower($1) OR email = $2",
		username, normalized))
	switch {
	case err == nil:
		if strings.EqualFold(existing.Username, username) && existing.Email == normalized {
			return existing, false, nil
		}
		if strings.EqualFold(existing.Username, username) {
			return models.User{}, false, invalidf("username", "%q is already taken", username)
		}
		return models.User{}, false, invalidf("email", "%s is already registered", normalized)
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return models.User{}, false, fmt.Errorf("look up account: %w", err)
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
		CreatedAt: r.now(),
	}
	if err := r.insertUser(ctx, user); err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) GetUserByUsername(username string) (models.User, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(username) = lower($1)", username))
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) ListUsers(limit, offset int) []models.User {
	ctx, cancel := r.opCtx()
	defer cancel()

	if offset < 0 {
		offset = 0
	}
	query := "SELECT " + userColumns + " FROM users ORDER BY lower(username) OFFSET $1"
	args := []any{offset}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil
		}
		users = append(users, user)
	}
	if rows.Err() != nil {
		return nil
	}
	return users
}

func (r *postgresRepository) UpdateUser(username string, update UserUpdate) (models.User, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(username) = lower($1)", username))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, notFound("user", username)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("look up user: %w", err)
	}

	if update.Username != nil {
		next := strings.TrimSpace(*update.Username)
		if err := validateUsername(next); err != nil {
			return models.User{}, err
		}
		user.Username = next
	}
	if update.Email != nil {
		normalized, err := normalizeEmail(*update.Email)
		if err != nil {
			return models.User{}, err
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

	_, err = r.pool.Exec(ctx,
		"UPDATE users SET username = $2, email = $3, role = $4, first_name = $5, last_name = $6, bio = $7 WHERE id = $1",
		user.ID, user.Username, user.Email, string(user.Role), user.FirstName, user.LastName, user.Bio)
	if err != nil {
		return models.User{}, translateConstraint(err)
	}
	return user, nil
}

func (r *postgresRepository) DeleteUser(username string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE lower(username) = lower($1)", username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("user", username)
	}
	return nil
}

func (r *postgresRepository) SetConfirmation(userID, codeHash, stateFingerprint string) error {
	return r.updateConfirmation(userID, codeHash, stateFingerprint)
}

func (r *postgresRepository) ClearConfirmation(userID string) error {
	return r.updateConfirmation(userID, "", "")
}

func (r *postgresRepository) updateConfirmation(userID, codeHash, stateFingerprint string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET confirmation_hash = $2, confirmation_state = $3 WHERE id = $1",
		userID, codeHash, stateFingerprint)
	if err != nil {
		return fmt.Errorf("update confirmation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("user", userID)
	}
	return nil
}

// Command bootstrap-admin seeds or promotes an administrator account in the
// datastore. Admins receive access tokens through the normal signup flow; this
// tool only guarantees the account exists and carries the admin role.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		username    string
		email       string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (catalog.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the admin account")
	flag.StringVar(&email, "email", "", "Email address for the admin account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username is required")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	user, created, err := bootstrapAdmin(repo, strings.TrimSpace(username), strings.TrimSpace(email))
	if err != nil {
		fatalf("bootstrap admin: %v", err)
	}

	state := "promoted"
	if created {
		state = "created"
	}
	fmt.Printf("Admin user %s (%s) %s successfully.\n", user.Username, user.Email, state)
	fmt.Println("Use the signup endpoint with this username to obtain a confirmation code.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewStorage(jsonPath)
	}
	repo, err := storage.NewPostgresRepository(postgresDSN)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := storage.EnsureSchema(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func bootstrapAdmin(repo storage.Repository, username, email string) (models.User, bool, error) {
	if existing, ok := repo.GetUserByUsername(username); ok {
		if existing.Role == models.RoleAdmin {
			return existing, false, nil
		}
		admin := models.RoleAdmin
		updated, err := repo.UpdateUser(existing.Username, storage.UserUpdate{Role: &admin})
		if err != nil {
			return models.User{}, false, err
		}
		return updated, false, nil
	}

	user, err := repo.CreateUser(storage.CreateUserParams{
		Username: username,
		Email:    email,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

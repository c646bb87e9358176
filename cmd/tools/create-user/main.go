// Command create-user seeds an account or resets the password of an existing
// one in the datastore.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"videobox/internal/auth"
	"videobox/internal/models"
	"videobox/internal/storage"
)

func main() {
	var (
		jsonPath       string
		postgresDSN    string
		username       string
		email          string
		fullName       string
		password       string
		revokeSessions bool
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the account")
	flag.StringVar(&email, "email", "", "Email address for the account")
	flag.StringVar(&fullName, "name", "", "Full name for the account (defaults to the username)")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.BoolVar(&revokeSessions, "revoke-sessions", false, "clear the stored refresh token when resetting an existing account")
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
	if err := auth.ValidatePassword(password); err != nil {
		fatalf("--password: %v", err)
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := createOrReset(ctx, repo, auth.DefaultPasswordHasher(), accountInput{
		Username:       username,
		Email:          email,
		FullName:       fullName,
		Password:       password,
		RevokeSessions: revokeSessions,
	})
	if err != nil {
		fatalf("create user: %v", err)
	}

	state := "password reset"
	if created {
		state = "created"
	}
	fmt.Printf("User %s (%s) %s successfully.\n", user.Username, user.Email, state)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = repo.Close(ctx)
}

type accountInput struct {
	Username       string
	Email          string
	FullName       string
	Password       string
	RevokeSessions bool
}

// createOrReset creates the account when the username is free. Otherwise it
// only replaces the password hash; profile fields are left untouched.
func createOrReset(ctx context.Context, repo storage.Repository, hasher auth.PasswordHasher, input accountInput) (models.User, bool, error) {
	existing, err := repo.FindByIdentifier(ctx, input.Username)
	switch {
	case err == nil:
		hash, err := hasher.Hash(input.Password)
		if err != nil {
			return models.User{}, false, err
		}
		if err := repo.SetPasswordHash(ctx, existing.ID, hash, input.RevokeSessions); err != nil {
			return models.User{}, false, err
		}
		updated, err := repo.FindByID(ctx, existing.ID)
		return updated, false, err
	case !errors.Is(err, auth.ErrNotFound):
		return models.User{}, false, err
	}

	if strings.TrimSpace(input.Email) == "" {
		return models.User{}, false, errors.New("--email is required when creating a user")
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(input.Username)
	}
	user, err := repo.CreateUser(ctx, storage.CreateUserParams{
		Username: input.Username,
		Email:    input.Email,
		FullName: fullName,
		Password: input.Password,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

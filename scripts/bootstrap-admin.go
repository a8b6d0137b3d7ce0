// Command bootstrap-admin provisions a platform admin account.
// Admin accounts cannot be self-registered through the API.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/repository"
)

type output struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		email       = flag.String("email", "admin@ezcommon.local", "Admin email")
		name        = flag.String("name", "Platform Admin", "Admin display name")
		password    = flag.String("password", "", "Admin password (random if empty)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	existing, err := repo.GetUserByEmail(ctx, *email)
	if err == nil {
		if existing.Role != model.RoleAdmin {
			fmt.Fprintf(os.Stderr, "email %s already used by a %s account\n", *email, existing.Role)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "admin %s already exists\n", *email)
		return
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		fmt.Fprintln(os.Stderr, "lookup user:", err)
		os.Exit(1)
	}

	plaintext := *password
	if plaintext == "" {
		plaintext, err = randomPassword()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate password:", err)
			os.Exit(1)
		}
	}

	hash, err := auth.HashPassword(plaintext)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash password:", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        *email,
		Name:         *name,
		Role:         model.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.CreateUser(ctx, user); err != nil {
		fmt.Fprintln(os.Stderr, "create admin:", err)
		os.Exit(1)
	}

	out := output{
		UserID: user.ID,
		Email:  user.Email,
	}
	if *password == "" {
		// Only echo generated passwords; chosen ones are already known.
		out.Password = plaintext
	}

	switch strings.ToLower(*format) {
	case "plain":
		if out.Password != "" {
			fmt.Println(out.Password)
		}
		fmt.Fprintf(os.Stderr, "created admin %s (%s)\n", out.Email, out.UserID)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func randomPassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

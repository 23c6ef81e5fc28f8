// scrollctl manages the user store and mints tokens for local testing.
//
// Usage:
//
//	scrollctl adduser --email ada@example.com [--first Ada] [--last Lovelace]
//	scrollctl token (--user-id ID | --email EMAIL) [--ttl 24h]
//	scrollctl users
//
// Settings (DB_PATH, JWT_SECRET) are read the same way the server reads them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/teleprompter/backend/internal/auth"
	"github.com/teleprompter/backend/internal/config"
	"github.com/teleprompter/backend/internal/db"
	"github.com/teleprompter/backend/internal/model"
	"github.com/teleprompter/backend/internal/repository"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: scrollctl <adduser|token|users> [flags]")
	}
	command, args := args[0], args[1:]

	var configPath, envFile string
	flagSet := pflag.NewFlagSet("scrollctl "+command, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML config file")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")

	var email, firstName, lastName, userID string
	var ttl time.Duration
	switch command {
	case "adduser":
		flagSet.StringVar(&email, "email", "", "email of the new user")
		flagSet.StringVar(&firstName, "first", "", "first name")
		flagSet.StringVar(&lastName, "last", "", "last name")
	case "token":
		flagSet.StringVar(&userID, "user-id", "", "user to mint a token for")
		flagSet.StringVar(&email, "email", "", "look the user up by email instead")
		flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	case "users":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.CloseDB()

	users := repository.NewUserRepository(database)
	ctx := context.Background()

	switch command {
	case "adduser":
		return addUser(ctx, out, users, &model.CreateUserRequest{Email: email, FirstName: firstName, LastName: lastName})
	case "token":
		return mintToken(ctx, out, users, cfg.JWTSecret, userID, email, ttl)
	default:
		return listUsers(ctx, out, users)
	}
}

func addUser(ctx context.Context, out io.Writer, users *repository.UserRepository, req *model.CreateUserRequest) error {
	user, err := users.Create(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, user.ID)
	return nil
}

func mintToken(ctx context.Context, out io.Writer, users *repository.UserRepository, secret, userID, email string, ttl time.Duration) error {
	var (
		user *model.User
		err  error
	)
	switch {
	case userID != "":
		user, err = users.GetByID(ctx, userID)
	case email != "":
		user, err = users.GetByEmail(ctx, email)
	default:
		return errors.New("one of --user-id or --email is required")
	}
	if err != nil {
		return err
	}

	token, err := auth.IssueToken(secret, user.ID, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func listUsers(ctx context.Context, out io.Writer, users *repository.UserRepository) error {
	list, err := users.List(ctx)
	if err != nil {
		return err
	}
	for _, user := range list {
		fmt.Fprintf(out, "%s\t%s\t%s %s\n", user.ID, user.Email, user.FirstName, user.LastName)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/budgetwise/internal/server"
)

func newTokenCommand(root *rootCommand) *ff.Command {
	fs := ff.NewFlagSet("token").SetParent(root.flags)
	secret := fs.StringLong("jwt-secret", "", "HS256 secret shared with the server")
	userID := fs.StringLong("user", "", "User ID to issue the token for")
	ttl := fs.DurationLong("ttl", 30*24*time.Hour, "Token lifetime")

	return &ff.Command{
		Name:      "token",
		Usage:     "budgetwise token --jwt-secret SECRET --user ID [--ttl DURATION]",
		ShortHelp: "issue a bearer token for the HTTP API",
		Flags:     fs,
		Exec: func(_ context.Context, _ []string) error {
			token, err := server.NewAuthenticator(*secret).IssueToken(*userID, *ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}

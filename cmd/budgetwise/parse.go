package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v4"
)

func newParseCommand(root *rootCommand) *ff.Command {
	fs := ff.NewFlagSet("parse").SetParent(root.flags)
	userID := fs.StringLong("user", "", "Apply this user's rules and preferences")

	return &ff.Command{
		Name:      "parse",
		Usage:     "budgetwise parse [FLAGS] [FILE]",
		ShortHelp: "parse OCR text from FILE or stdin and print JSON",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(a.parser.Parse(ctx, *userID, text))
		},
	}
}

// readInput reads the single file argument, or stdin when there is none or it is "-"
func readInput(args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one file, got %d", len(args))
	}

	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}

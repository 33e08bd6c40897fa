package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/peterbourgon/ff/v4"
	"github.com/shopspring/decimal"

	"github.com/zombor/budgetwise/internal/categorize"
)

// csvTransaction is one input row. Amount stays a string so a bad value only
// marks its own row malformed.
type csvTransaction struct {
	ID          string `csv:"id"`
	Description string `csv:"description"`
	Merchant    string `csv:"merchant"`
	Amount      string `csv:"amount"`
}

func newCategorizeCommand(root *rootCommand) *ff.Command {
	fs := ff.NewFlagSet("categorize").SetParent(root.flags)
	userID := fs.StringLong("user", "", "Apply this user's rules and preferences")
	output := fs.StringLong("out", "", "Write results to this file instead of stdout")

	return &ff.Command{
		Name:      "categorize",
		Usage:     "budgetwise categorize [FLAGS] [FILE]",
		ShortHelp: "categorize a CSV of transactions (id,description,merchant,amount)",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}
			txns, err := readTransactions(strings.NewReader(text))
			if err != nil {
				return err
			}

			a, err := openApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.batch.ClassifyBatch(ctx, *userID, txns)
			slog.Info("Categorized transactions", "count", len(results))

			var w io.Writer = os.Stdout
			if *output != "" {
				f, err := os.Create(*output)
				if err != nil {
					return fmt.Errorf("creating output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return writeResults(w, results)
		},
	}
}

// readTransactions decodes CSV rows with a header line
func readTransactions(r io.Reader) ([]categorize.Transaction, error) {
	var rows []csvTransaction
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}

	txns := make([]categorize.Transaction, len(rows))
	for i, row := range rows {
		txn := categorize.Transaction{
			ID:          row.ID,
			Description: row.Description,
			Merchant:    row.Merchant,
		}
		if raw := strings.TrimSpace(row.Amount); raw != "" {
			amount, err := decimal.NewFromString(strings.TrimPrefix(raw, "$"))
			if err != nil {
				slog.Warn("Malformed amount", "row", i+2, "amount", row.Amount)
				txn.Malformed = true
			} else {
				txn.Amount = amount.InexactFloat64()
			}
		}
		txns[i] = txn
	}
	return txns, nil
}

func writeResults(w io.Writer, results []categorize.BatchResult) error {
	if err := gocsv.Marshal(results, w); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	return nil
}

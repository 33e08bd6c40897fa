package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/budgetwise/internal/ocr"
	"github.com/zombor/budgetwise/internal/receipt"
	"github.com/zombor/budgetwise/internal/server"
)

type serveConfig struct {
	port        *int
	storagePath *string
	ocrBackend  *string
	geminiKey   *string
	geminiModel *string
	ollamaURL   *string
	ollamaModel *string
	ocrRetries  *int
	jwtSecret   *string
	rateLimit   *float64
	rateBurst   *int
	corsOrigins *string
}

func newServeCommand(root *rootCommand) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(root.flags)
	cfg := &serveConfig{
		port:        fs.IntLong("port", 8080, "HTTP server port"),
		storagePath: fs.StringLong("storage", "./receipts", "Receipt file storage directory"),
		ocrBackend:  fs.StringLong("ocr", "none", "Text recognition: 'gemini', 'ollama' or 'none'"),
		geminiKey:   fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel: fs.StringLong("gemini-model", ocr.DefaultGeminiModel, "Google Gemini model name"),
		ollamaURL:   fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel: fs.StringLong("ollama-model", "llava", "Ollama vision model name"),
		ocrRetries:  fs.IntLong("ocr-retries", 3, "Attempts for transient text recognition failures"),
		jwtSecret:   fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens; empty disables authentication"),
		rateLimit:   fs.Float64Long("rate-limit", 10, "Requests per second per user; 0 disables"),
		rateBurst:   fs.IntLong("rate-burst", 20, "Burst size for the per-user rate limit"),
		corsOrigins: fs.StringLong("cors-origins", "", "Comma-separated allowed CORS origins; empty allows any"),
	}

	return &ff.Command{
		Name:      "serve",
		Usage:     "budgetwise serve [FLAGS]",
		ShortHelp: "run the HTTP API",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			return runServe(ctx, root, cfg)
		},
	}
}

func runServe(ctx context.Context, root *rootCommand, cfg *serveConfig) error {
	a, err := openApp(ctx, root)
	if err != nil {
		return err
	}
	defer a.Close()

	recognizer, err := newRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	if recognizer != nil {
		defer recognizer.Close()
	} else {
		slog.Warn("Text recognition disabled; uploads will be rejected")
	}

	slog.Info("Initializing storage...", "path", *cfg.storagePath)
	store, err := receipt.NewLocalStorage(*cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	receiptDB, err := receipt.NewBoltDB(a.db)
	if err != nil {
		return fmt.Errorf("initializing receipt database: %w", err)
	}

	srv := server.NewServer(server.Services{
		Receipts:   receipt.NewService(receiptDB, recognizer, store, a.parser),
		Classifier: a.classifier,
		Batch:      a.batch,
		Rules:      a.rules,
	}, server.Config{
		JWTSecret:      *cfg.jwtSecret,
		RateLimit:      *cfg.rateLimit,
		RateBurst:      *cfg.rateBurst,
		AllowedOrigins: splitList(*cfg.corsOrigins),
	})

	addr := fmt.Sprintf(":%d", *cfg.port)
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(addr)
	}()

	if *cfg.jwtSecret == "" {
		slog.Warn("Authentication disabled; all requests act as the local user", "user", server.DefaultUser)
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return <-errc
}

// newRecognizer returns nil when text recognition is disabled
func newRecognizer(ctx context.Context, cfg *serveConfig) (ocr.Recognizer, error) {
	retries := uint(max(*cfg.ocrRetries, 1))

	switch *cfg.ocrBackend {
	case "none", "":
		return nil, nil
	case "gemini":
		apiKey := *cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", *cfg.geminiModel)
		gemini, err := ocr.NewGemini(ctx, apiKey, *cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing Gemini: %w", err)
		}
		return ocr.WithRetry(gemini, retries, time.Second), nil
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *cfg.ollamaURL, "model", *cfg.ollamaModel)
		return ocr.WithRetry(ocr.NewOllama(*cfg.ollamaURL, *cfg.ollamaModel), retries, time.Second), nil
	default:
		return nil, fmt.Errorf("invalid OCR backend %q (valid: gemini, ollama, none)", *cfg.ocrBackend)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

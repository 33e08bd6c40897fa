package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/budgetwise/internal/ocr"
)

// ErrOCRUnavailable is returned for uploads when no text recognizer is configured
var ErrOCRUnavailable = errors.New("text recognition is not configured")

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles receipt operations
type Service struct {
	db          DB
	recognizer  ocr.Recognizer
	storage     Storage
	parser      *Parser
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// recognizer may be nil, which disables uploads but not text parsing.
func NewService(db DB, recognizer ocr.Recognizer, storage Storage, parser *Parser) *Service {
	return NewServiceWithDeps(db, recognizer, storage, parser, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer ocr.Recognizer, storage Storage, parser *Parser, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		parser:      parser,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
	safeExtension       = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,5}$`)
)

// sanitizeFilename strips special characters and shortens phone-generated names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	if !safeExtension.MatchString(ext) {
		ext = ""
	}
	return base + ext
}

// ParseText parses OCR text without storing anything
func (s *Service) ParseText(ctx context.Context, userID, text string) ParsedReceipt {
	return s.parser.Parse(ctx, userID, text)
}

// ProcessReceipt stores an uploaded receipt, recognizes its text, parses it and saves the record
func (s *Service) ProcessReceipt(ctx context.Context, userID, filename string, data []byte, contentType string) (*Receipt, error) {
	if s.recognizer == nil {
		return nil, ErrOCRUnavailable
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(filepath.Join(userID, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.recognizer.RecognizeText(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to recognize receipt text",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.removeFile(savedPath)
		return nil, fmt.Errorf("recognizing receipt text: %w", err)
	}

	parsed := s.parser.Parse(ctx, userID, text)

	receipt := &Receipt{
		ID:          id,
		UserID:      userID,
		Merchant:    parsed.Merchant,
		Date:        parsed.Date,
		Amount:      toCents(parsed.Amount),
		Category:    parsed.Category,
		Confidence:  parsed.Confidence,
		Items:       parsed.Items,
		RawText:     text,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	return receipt, nil
}

func (s *Service) removeFile(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to clean up receipt file", "filename", path, "error", err)
	}
}

// toCents converts dollars to whole cents without float truncation
func toCents(amount float64) int {
	return int(decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart())
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(userID, id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns the user's receipts
func (s *Service) ListReceipts(userID string) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts(userID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(userID, id string) error {
	receipt, err := s.db.GetReceipt(userID, id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(userID, id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the uploaded file for a receipt
func (s *Service) GetReceiptFile(userID, id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(userID, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

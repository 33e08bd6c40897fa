package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/budgetwise/internal/ocr"
	"github.com/zombor/budgetwise/internal/receipt"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

type parseRequest struct {
	Text *string `json:"text"`
}

// handleParseReceipt parses OCR text supplied by the client
func (s *Server) handleParseReceipt(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	parsed := s.services.Receipts.ParseText(r.Context(), userIDFrom(r.Context()), *req.Text)
	writeJSON(w, http.StatusOK, parsed)
}

// handleListReceipts returns the caller's receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.services.Receipts.ListReceipts(userIDFrom(r.Context()))
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.services.Receipts.GetReceipt(userIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeReceiptError(w, "getting receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetReceiptFile serves the originally uploaded document
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.services.Receipts.GetReceiptFile(userIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeReceiptError(w, "getting receipt file", err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing receipt file", "error", err)
	}
}

// handleDeleteReceipt removes a receipt and its file
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Receipts.DeleteReceipt(userIDFrom(r.Context()), r.PathValue("id")); err != nil {
		writeReceiptError(w, "deleting receipt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadReceipt recognizes, parses and stores an uploaded receipt
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromName(header.Filename)
	}

	rec, err := s.services.Receipts.ProcessReceipt(r.Context(), userIDFrom(r.Context()), header.Filename, data, contentType)
	switch {
	case errors.Is(err, receipt.ErrOCRUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Text recognition is not configured")
		return
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not read the receipt")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// contentTypeFromName infers a MIME type for uploads sent without one
func contentTypeFromName(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func writeReceiptError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, receipt.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	slog.Error("Error "+action, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

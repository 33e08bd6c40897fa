package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/budgetwise/internal/categorize"
)

// MaxBatchSize caps the entries accepted in one categorize request
const MaxBatchSize = 1000

// transactionID accepts either a JSON string or number
type transactionID string

func (id *transactionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = transactionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction id must be a string or number: %w", err)
	}
	*id = transactionID(n.String())
	return nil
}

type transactionInput struct {
	ID            transactionID `json:"id"`
	TransactionID transactionID `json:"transactionId"`
	Description   string        `json:"description"`
	Merchant      string        `json:"merchant"`
	Amount        float64       `json:"amount"`
}

func (t transactionInput) id() string {
	if t.TransactionID != "" {
		return string(t.TransactionID)
	}
	return string(t.ID)
}

type categorizeRequest struct {
	transactionInput
	Batch []json.RawMessage `json:"batch"`
}

type categorizeResponse struct {
	Success       bool    `json:"success"`
	Category      string  `json:"category"`
	Confidence    float64 `json:"confidence"`
	TransactionID string  `json:"transactionId,omitempty"`
}

type batchResponse struct {
	Success bool                     `json:"success"`
	Batch   []categorize.BatchResult `json:"batch"`
}

// handleCategorize classifies one transaction, or every entry of a batch
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	userID := userIDFrom(r.Context())

	if req.Batch != nil {
		if len(req.Batch) > MaxBatchSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d entries", MaxBatchSize))
			return
		}
		txns := make([]categorize.Transaction, len(req.Batch))
		for i, raw := range req.Batch {
			txns[i] = decodeBatchEntry(raw)
		}
		results := s.services.Batch.ClassifyBatch(r.Context(), userID, txns)
		writeJSON(w, http.StatusOK, batchResponse{Success: true, Batch: results})
		return
	}

	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	result := s.services.Classifier.Classify(r.Context(), categorize.Request{
		UserID:      userID,
		Description: req.Description,
		Merchant:    req.Merchant,
	})
	writeJSON(w, http.StatusOK, categorizeResponse{
		Success:       true,
		Category:      result.Category,
		Confidence:    result.Confidence,
		TransactionID: req.id(),
	})
}

// decodeBatchEntry never fails; undecodable entries are marked malformed
func decodeBatchEntry(raw json.RawMessage) categorize.Transaction {
	var in transactionInput
	if err := json.Unmarshal(raw, &in); err != nil {
		slog.Warn("Malformed batch entry", "error", err)
		// salvage the id so the caller can match the fallback result
		var probe struct {
			ID            transactionID `json:"id"`
			TransactionID transactionID `json:"transactionId"`
		}
		_ = json.Unmarshal(raw, &probe)
		return categorize.Transaction{ID: transactionInput{ID: probe.ID, TransactionID: probe.TransactionID}.id(), Malformed: true}
	}
	return categorize.Transaction{
		ID:          in.id(),
		Description: in.Description,
		Merchant:    in.Merchant,
		Amount:      in.Amount,
	}
}

type correctionRequest struct {
	Description string `json:"description"`
	Merchant    string `json:"merchant"`
	Category    string `json:"category"`
}

// handleCorrection stores the category a user chose for a transaction
func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Category) == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if categorize.PreferenceKey(req.Merchant, req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description or merchant is required")
		return
	}

	err := s.services.Classifier.Learn(r.Context(), userIDFrom(r.Context()), req.Description, req.Merchant, strings.TrimSpace(req.Category))
	if err != nil {
		slog.Error("Error storing correction", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

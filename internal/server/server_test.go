package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/budgetwise/internal/categorize"
	"github.com/zombor/budgetwise/internal/ocr"
	"github.com/zombor/budgetwise/internal/receipt"
	"github.com/zombor/budgetwise/internal/rules"
)

const groceryReceipt = `CORNER MARKET
Apples 3.99
Bread 2.00
TOTAL $25.99
03/15/2024`

var _ = Describe("Server", func() {
	var (
		cfg        Config
		recognizer ocr.Recognizer
		services   Services
		httpServer *httptest.Server
		client     *apiClient
	)

	BeforeEach(func() {
		cfg = Config{}
		recognizer = &stubRecognizer{text: groceryReceipt}
	})

	JustBeforeEach(func() {
		services = newServices(recognizer)
		httpServer = httptest.NewServer(NewServerWithMux(services, cfg, http.NewServeMux()))
		DeferCleanup(httpServer.Close)
		client = &apiClient{baseURL: httpServer.URL}
	})

	Describe("GET /healthz", func() {
		It("should report ok", func() {
			resp, body := client.do(http.MethodGet, "/healthz", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[map[string]string](body)).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("GET /metrics", func() {
		It("should expose request counters by route", func() {
			client.do(http.MethodGet, "/healthz", nil)
			resp, body := client.do(http.MethodGet, "/metrics", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`budgetwise_http_requests_total{code="200",method="GET",route="GET /healthz"}`))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, httpServer.URL+"/api/rules", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "https://app.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, _ := client.send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		var auth *Authenticator

		BeforeEach(func() {
			cfg.JWTSecret = "s3cret"
			auth = NewAuthenticator("s3cret")
		})

		It("should reject requests without a token", func() {
			resp, body := client.do(http.MethodGet, "/api/rules", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bearer"))
			Expect(decode[errorResponse](body)).To(Equal(errorResponse{Success: false, Error: "Unauthorized"}))
		})

		It("should reject tokens signed with another secret", func() {
			token, err := NewAuthenticator("other").IssueToken("alice", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			client.token = token
			resp, _ := client.do(http.MethodGet, "/api/rules", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should reject expired tokens", func() {
			auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
			token, err := auth.IssueToken("alice", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			client.token = token
			resp, _ := client.do(http.MethodGet, "/api/rules", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should leave health checks open", func() {
			resp, _ := client.do(http.MethodGet, "/healthz", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should scope data to the token's user", func() {
			aliceToken, err := auth.IssueToken("alice", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			bobToken, err := auth.IssueToken("bob", time.Hour)
			Expect(err).NotTo(HaveOccurred())

			client.token = aliceToken
			resp, body := client.do(http.MethodPost, "/api/rules", map[string]any{"merchant_pattern": "acme", "category": "Office"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(decode[rules.CategoryRule](body).UserID).To(Equal("alice"))

			client.token = bobToken
			_, body = client.do(http.MethodGet, "/api/rules", nil)
			Expect(decode[[]rules.CategoryRule](body)).To(BeEmpty())
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			cfg.RateLimit = 1
			cfg.RateBurst = 2
		})

		It("should reject requests beyond the burst", func() {
			statuses := make([]int, 0, 3)
			for range 3 {
				resp, _ := client.do(http.MethodGet, "/api/rules", nil)
				statuses = append(statuses, resp.StatusCode)
			}
			Expect(statuses).To(Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}))
		})
	})

	Describe("POST /api/receipts/parse", func() {
		It("should return the parsed receipt", func() {
			resp, body := client.do(http.MethodPost, "/api/receipts/parse", map[string]string{
				"text": "STARBUCKS\nLatte 4.50\nTOTAL 4.50\n2024-05-01",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			parsed := decode[receipt.ParsedReceipt](body)
			Expect(parsed.Merchant).To(Equal("STARBUCKS"))
			Expect(parsed.Amount).To(Equal(4.50))
			Expect(parsed.Date).To(Equal("2024-05-01"))
			Expect(parsed.Category).To(Equal("Food & Dining"))
			Expect(parsed.Items).To(HaveLen(1))
		})

		It("should return defaults for empty text", func() {
			resp, body := client.do(http.MethodPost, "/api/receipts/parse", map[string]string{"text": ""})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"items":[]`))
			Expect(decode[receipt.ParsedReceipt](body).Merchant).To(Equal(receipt.UnknownMerchant))
		})

		It("should require the text field", func() {
			resp, _ := client.do(http.MethodPost, "/api/receipts/parse", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject invalid JSON", func() {
			resp, body := client.do(http.MethodPost, "/api/receipts/parse", "{not json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[errorResponse](body).Success).To(BeFalse())
		})
	})

	Describe("receipt uploads", func() {
		It("should recognize, parse and store the receipt", func() {
			resp, body := client.upload("scan.png", []byte("png bytes"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			created := decode[receipt.Receipt](body)
			Expect(created.UserID).To(Equal(DefaultUser))
			Expect(created.Merchant).To(Equal("CORNER MARKET"))
			Expect(created.Amount).To(Equal(2599))
			Expect(created.Category).To(Equal("Groceries"))
			Expect(created.ContentType).To(Equal("image/png"))

			resp, body = client.do(http.MethodGet, "/api/receipts", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[[]receipt.Receipt](body)).To(HaveLen(1))

			resp, body = client.do(http.MethodGet, "/api/receipts/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[receipt.Receipt](body).ID).To(Equal(created.ID))

			resp, body = client.do(http.MethodGet, "/api/receipts/"+created.ID+"/file", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			Expect(string(body)).To(Equal("png bytes"))

			resp, _ = client.do(http.MethodDelete, "/api/receipts/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, _ = client.do(http.MethodGet, "/api/receipts/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should require a file", func() {
			resp, _ := client.do(http.MethodPost, "/api/receipts", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("no recognizer is configured", func() {
			BeforeEach(func() {
				recognizer = nil
			})

			It("should return service unavailable", func() {
				resp, _ := client.upload("scan.png", []byte("png bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			})
		})

		When("the document format is unsupported", func() {
			BeforeEach(func() {
				recognizer = &stubRecognizer{err: fmt.Errorf("%w: text/plain", ocr.ErrUnsupportedFormat)}
			})

			It("should return bad request", func() {
				resp, body := client.upload("notes.txt", []byte("hello"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode[errorResponse](body).Error).To(ContainSubstring("unsupported document format"))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer = &stubRecognizer{err: errors.New("model crashed")}
			})

			It("should return an internal error without details", func() {
				resp, body := client.upload("scan.png", []byte("png bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(string(body)).NotTo(ContainSubstring("model crashed"))
			})
		})
	})

	Describe("POST /api/transactions/categorize", func() {
		It("should categorize by merchant", func() {
			resp, body := client.do(http.MethodPost, "/api/transactions/categorize", map[string]any{
				"description":   "Coffee",
				"merchant":      "Starbucks #123",
				"amount":        4.5,
				"transactionId": "t-1",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[categorizeResponse](body)).To(Equal(categorizeResponse{
				Success:       true,
				Category:      "Food & Dining",
				Confidence:    0.9,
				TransactionID: "t-1",
			}))
		})

		It("should categorize by keyword", func() {
			_, body := client.do(http.MethodPost, "/api/transactions/categorize", map[string]any{
				"description": "Dinner at Joe's Restaurant",
			})
			result := decode[categorizeResponse](body)
			Expect(result.Category).To(Equal("Food & Dining"))
			Expect(result.Confidence).To(Equal(0.7))
		})

		It("should fall back to Uncategorized", func() {
			_, body := client.do(http.MethodPost, "/api/transactions/categorize", map[string]any{
				"description": "xyz",
			})
			result := decode[categorizeResponse](body)
			Expect(result.Category).To(Equal(categorize.Uncategorized))
			Expect(result.Confidence).To(Equal(0.1))
		})

		It("should require a description", func() {
			resp, body := client.do(http.MethodPost, "/api/transactions/categorize", map[string]any{"merchant": "Shell"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[errorResponse](body).Error).To(Equal("description is required"))
		})

		It("should apply user rules before the static tables", func() {
			resp, _ := client.do(http.MethodPost, "/api/rules", map[string]any{
				"merchant_pattern": "^starbucks",
				"category":         "Work Meals",
				"priority":         10,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			_, body := client.do(http.MethodPost, "/api/transactions/categorize", map[string]any{
				"description": "Coffee",
				"merchant":    "STARBUCKS #9",
			})
			Expect(decode[categorizeResponse](body).Category).To(Equal("Work Meals"))
		})

		Describe("batches", func() {
			It("should return one result per entry in order", func() {
				resp, body := client.do(http.MethodPost, "/api/transactions/categorize", `{"batch":[
					{"id":"a","description":"Gas","merchant":"Shell"},
					{"id":2,"description":"monthly rent"},
					{"transactionId":"c","description":"nothing here"},
					{"id":"d","description":42}
				]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				result := decode[batchResponse](body)
				Expect(result.Success).To(BeTrue())
				Expect(result.Batch).To(Equal([]categorize.BatchResult{
					{TransactionID: "a", Category: "Transportation", Confidence: 0.9},
					{TransactionID: "2", Category: "Housing", Confidence: 0.7},
					{TransactionID: "c", Category: categorize.Uncategorized, Confidence: 0.1},
					{TransactionID: "d", Category: categorize.Uncategorized, Confidence: 0.1},
				}))
			})

			It("should accept an empty batch", func() {
				_, body := client.do(http.MethodPost, "/api/transactions/categorize", `{"batch":[]}`)
				Expect(decode[batchResponse](body).Batch).To(BeEmpty())
			})

			It("should reject oversized batches", func() {
				entries := make([]string, MaxBatchSize+1)
				for i := range entries {
					entries[i] = `{"description":"x"}`
				}
				resp, _ := client.do(http.MethodPost, "/api/transactions/categorize", `{"batch":[`+strings.Join(entries, ",")+`]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/transactions/corrections", func() {
		It("should make later lookups return the corrected category", func() {
			resp, body := client.do(http.MethodPost, "/api/transactions/corrections", map[string]string{
				"description": "Corner Shop",
				"category":    "Snacks",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[map[string]bool](body)).To(HaveKeyWithValue("success", true))

			_, body = client.do(http.MethodPost, "/api/transactions/categorize", map[string]string{
				"description": "corner shop",
			})
			result := decode[categorizeResponse](body)
			Expect(result.Category).To(Equal("Snacks"))
			Expect(result.Confidence).To(Equal(categorize.PreferenceConfidence))
		})

		It("should require a category", func() {
			resp, _ := client.do(http.MethodPost, "/api/transactions/corrections", map[string]string{"description": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should require a description or merchant", func() {
			resp, _ := client.do(http.MethodPost, "/api/transactions/corrections", map[string]string{"category": "Food"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("rules", func() {
		var created rules.CategoryRule

		JustBeforeEach(func() {
			resp, body := client.do(http.MethodPost, "/api/rules", map[string]any{
				"merchant_pattern": "amzn",
				"category":         "Shopping",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			created = decode[rules.CategoryRule](body)
		})

		It("should get a rule", func() {
			resp, body := client.do(http.MethodGet, "/api/rules/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode[rules.CategoryRule](body).Pattern).To(Equal("amzn"))
		})

		It("should list rules in priority order", func() {
			client.do(http.MethodPost, "/api/rules", map[string]any{"merchant_pattern": "uber eats", "category": "Food", "priority": 5})
			_, body := client.do(http.MethodGet, "/api/rules", nil)
			list := decode[[]rules.CategoryRule](body)
			Expect(list).To(HaveLen(2))
			Expect(list[0].Category).To(Equal("Food"))
		})

		It("should partially update a rule", func() {
			resp, body := client.do(http.MethodPut, "/api/rules/"+created.ID, map[string]any{"priority": 3})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			updated := decode[rules.CategoryRule](body)
			Expect(updated.Priority).To(Equal(3))
			Expect(updated.Category).To(Equal("Shopping"))
		})

		It("should delete a rule", func() {
			resp, _ := client.do(http.MethodDelete, "/api/rules/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp, _ = client.do(http.MethodGet, "/api/rules/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reject invalid patterns", func() {
			resp, body := client.do(http.MethodPost, "/api/rules", map[string]any{"merchant_pattern": "(", "category": "X"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode[errorResponse](body).Error).To(ContainSubstring("invalid rule"))
		})

		It("should return not found for unknown rules", func() {
			resp, _ := client.do(http.MethodPut, "/api/rules/missing", map[string]any{"priority": 1})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})

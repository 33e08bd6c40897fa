package receipt

import "time"

// UnknownMerchant is used when no merchant line can be found
const UnknownMerchant = "Unknown Merchant"

// DateLayout is the format of every extracted date
const DateLayout = "2006-01-02"

// LineItem is a single purchased item on a receipt
type LineItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ParsedReceipt is the structured result of parsing OCR text
type ParsedReceipt struct {
	Merchant   string     `json:"merchant"`
	Amount     float64    `json:"amount"`
	Date       string     `json:"date"` // YYYY-MM-DD
	Category   string     `json:"category"`
	Confidence float64    `json:"confidence"`
	Items      []LineItem `json:"items"`
}

// Receipt is an uploaded receipt image together with what was parsed from it
type Receipt struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Merchant    string     `json:"merchant"`
	Date        string     `json:"date"`
	Amount      int        `json:"amount"` // Amount in cents
	Category    string     `json:"category"`
	Confidence  float64    `json:"confidence"`
	Items       []LineItem `json:"items"`
	RawText     string     `json:"raw_text"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

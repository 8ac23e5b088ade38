/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients. DTOs are kept separate
  from domain types so the wire format can evolve without touching the
  engine.

CONVENTIONS:
  - Monetary amounts travel as decimal strings ("1500.00"), never floats.
  - Dates use "2006-01-02", timestamps use RFC3339.
  - Nullable amounts are *string; absent means "not provided".

SEE ALSO:
  - handlers.go: Where these DTOs are populated
*/
package api

// AdjustmentItemDTO is one coverage adjustment within a batch request.
type AdjustmentItemDTO struct {
	AccountingLine int     `json:"accounting_line"`
	CoverageCode   string  `json:"coverage_code"`
	NewBalance     *string `json:"new_balance"`
	ConfirmZero    bool    `json:"confirm_zero,omitempty"`
}

// AdjustBatchRequest is the body of POST /api/claims/{...}/adjustments.
type AdjustBatchRequest struct {
	Adjustments []AdjustmentItemDTO `json:"adjustments"`
}

// AdjustmentResultDTO is the per-coverage outcome of a batch.
type AdjustmentResultDTO struct {
	AccountingLine int    `json:"accounting_line"`
	CoverageCode   string `json:"coverage_code"`
	Accepted       bool   `json:"accepted"`
	State          string `json:"state"`
	Delta          string `json:"delta"`
	NewBalance     string `json:"new_balance"`
	MovementID     int64  `json:"movement_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// AdjustBatchResponse is the body returned for an adjustment batch.
type AdjustBatchResponse struct {
	BatchID string                `json:"batch_id"`
	Claim   string                `json:"claim"`
	Results []AdjustmentResultDTO `json:"results"`
}

// CoverageDTO describes one coverage reserve with its fresh balance.
type CoverageDTO struct {
	AccountingLine    int    `json:"accounting_line"`
	CoverageCode      string `json:"coverage_code"`
	Policy            string `json:"policy"`
	SumInsured        string `json:"sum_insured"`
	InitialReserve    string `json:"initial_reserve"`
	AdjustedAmount    string `json:"adjusted_amount"`
	LiquidationAmount string `json:"liquidation_amount"`
	RejectionAmount   string `json:"rejection_amount"`
	CurrentBalance    string `json:"current_balance"`
	Priority          *int   `json:"priority,omitempty"`
	SharedLimit       bool   `json:"shared_limit"`
	EffectiveDate     string `json:"effective_date"`
}

// MovementDTO is one row of the claim movement ledger.
type MovementDTO struct {
	MovementNumber int64  `json:"movement_number"`
	Type           int    `json:"type"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Date           string `json:"date"`
	CreatedBy      string `json:"created_by"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

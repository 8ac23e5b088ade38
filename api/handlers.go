/*
handlers.go - HTTP API handlers for the reserve adjustment service

PURPOSE:
  Exposes the reserve adjustment engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Claims:
    POST   /api/claims/{branch}/{line}/{number}/adjustments  Apply a batch of reserve adjustments
    GET    /api/claims/{branch}/{line}/{number}/coverages    Coverage reserves with fresh balances
    GET    /api/claims/{branch}/{line}/{number}/movements    Claim movement ledger

REQUEST FLOW:
  1. Parse claim reference from the URL
  2. Decode and validate the JSON body
  3. Call the adjustment service
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed path or body, unparseable amounts
  - 404: Unknown claim or coverage
  - 500: Persistence failures

  Per-coverage validation rejections are NOT errors: the batch still
  returns 200 and each rejection carries accepted=false plus the reason.

SECURITY NOTE:
  The adjusting user is taken from the X-User header when present.
  There is no authentication middleware; put one in front in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jaimotivus/claims-reserve/claims"
	"github.com/jaimotivus/claims-reserve/reserve"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *claims.Service
	Tables  claims.CodeTables
}

// NewHandler creates a new handler around the adjustment service.
func NewHandler(service *claims.Service, tables claims.CodeTables) *Handler {
	return &Handler{Service: service, Tables: tables}
}

// claimRef parses the claim key from the URL path.
func claimRef(r *http.Request) (reserve.ClaimRef, error) {
	var ref reserve.ClaimRef
	parts := []struct {
		name string
		dst  *int
	}{
		{"branch", &ref.Branch},
		{"line", &ref.Line},
		{"number", &ref.Number},
	}
	for _, p := range parts {
		v, err := strconv.Atoi(chi.URLParam(r, p.name))
		if err != nil {
			return ref, fmt.Errorf("invalid %s: %w", p.name, err)
		}
		*p.dst = v
	}
	return ref, nil
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// AdjustReserves applies a batch of reserve adjustments to one claim.
func (h *Handler) AdjustReserves(w http.ResponseWriter, r *http.Request) {
	ref, err := claimRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid claim reference", err)
		return
	}

	var body AdjustBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body.Adjustments) == 0 {
		writeError(w, http.StatusBadRequest, "At least one adjustment is required", nil)
		return
	}

	requests := make([]reserve.AdjustmentRequest, 0, len(body.Adjustments))
	for _, item := range body.Adjustments {
		req := reserve.AdjustmentRequest{
			Coverage: reserve.CoverageKey{
				AccountingLine: item.AccountingLine,
				Code:           item.CoverageCode,
			},
			ConfirmZero: item.ConfirmZero,
		}
		if item.NewBalance != nil {
			amount, err := decimal.NewFromString(*item.NewBalance)
			if err != nil {
				writeError(w, http.StatusBadRequest,
					fmt.Sprintf("Invalid amount for coverage %s", item.CoverageCode), err)
				return
			}
			req.NewBalance = &amount
		}
		requests = append(requests, req)
	}

	ctx := r.Context()
	if user := r.Header.Get("X-User"); user != "" {
		ctx = claims.WithActor(ctx, user)
	}

	batch, err := h.Service.Adjust(ctx, ref, requests)
	if err != nil {
		if reserve.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Claim or coverage not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to apply adjustments", err)
		return
	}

	results := make([]AdjustmentResultDTO, len(batch.Results))
	for i, res := range batch.Results {
		results[i] = AdjustmentResultDTO{
			AccountingLine: res.Coverage.AccountingLine,
			CoverageCode:   res.Coverage.Code,
			Accepted:       res.Accepted,
			State:          string(res.State),
			Delta:          res.Delta.String(),
			NewBalance:     res.NewBalance.String(),
			MovementID:     res.MovementID,
			Message:        res.Message,
		}
	}

	writeJSON(w, http.StatusOK, AdjustBatchResponse{
		BatchID: batch.BatchID,
		Claim:   batch.Claim.String(),
		Results: results,
	})
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// ListCoverages returns the claim's coverage reserves with balances
// recomputed from the ledgers.
func (h *Handler) ListCoverages(w http.ResponseWriter, r *http.Request) {
	ref, err := claimRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid claim reference", err)
		return
	}

	coverages, err := h.Service.CoverageBalances(r.Context(), ref)
	if err != nil {
		if reserve.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Claim not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load coverages", err)
		return
	}

	dtos := make([]CoverageDTO, len(coverages))
	for i, c := range coverages {
		dtos[i] = CoverageDTO{
			AccountingLine:    c.Coverage.AccountingLine,
			CoverageCode:      c.Coverage.Code,
			Policy:            c.Policy,
			SumInsured:        c.SumInsured.String(),
			InitialReserve:    c.InitialReserve.String(),
			AdjustedAmount:    c.AdjustedAmount.String(),
			LiquidationAmount: c.LiquidationAmount.String(),
			RejectionAmount:   c.RejectionAmount.String(),
			CurrentBalance:    c.CurrentBalance.String(),
			Priority:          c.Priority,
			SharedLimit:       c.SharedLimitProduct,
			EffectiveDate:     c.EffectiveDate.Format("2006-01-02"),
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// ListMovements returns the claim movement ledger, oldest first.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	ref, err := claimRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid claim reference", err)
		return
	}

	movements, err := h.Service.Movements(r.Context(), ref)
	if err != nil {
		if reserve.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Claim not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load movements", err)
		return
	}

	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = MovementDTO{
			MovementNumber: m.MovementNumber,
			Type:           int(m.Type),
			Description:    h.Tables.MovementTypeDescription(m.Type),
			Amount:         m.Amount.String(),
			Currency:       m.Currency,
			Date:           m.Date.Format(time.RFC3339),
			CreatedBy:      m.CreatedBy,
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

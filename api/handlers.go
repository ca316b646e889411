/*
handlers.go - HTTP API handlers for the point ledger

PURPOSE:
  Exposes the point ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger. All business rules
  live in package point; handlers only translate.

ENDPOINTS:
  GET    /point/{id}            Current balance
  GET    /point/{id}/histories  Charge/use history in commit order
  PATCH  /point/{id}/charge     Add points, body is the amount
  PATCH  /point/{id}/use        Spend points, body is the amount
  GET    /health                Liveness check

REQUEST FLOW:
  1. Parse the account id from the path
  2. Validate the id before reading the body, so a bad id wins over a bad amount
  3. Parse the amount (bare number or {"amount": n})
  4. Call the ledger
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, rejected charge/use
  - 500: Storage faults and anything unexpected
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/point-ledger/point"
)

// maxBodyBytes caps PATCH bodies. An amount never needs more.
const maxBodyBytes = 1 << 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Ledger is the subset of *point.PointLedger the handlers need.
type Ledger interface {
	Charge(ctx context.Context, id point.AccountID, amount int64) (point.UserPoint, error)
	Use(ctx context.Context, id point.AccountID, amount int64) (point.UserPoint, error)
	Balance(ctx context.Context, id point.AccountID) (point.UserPoint, error)
	History(ctx context.Context, id point.AccountID) ([]point.PointHistory, error)
}

var _ Ledger = (*point.PointLedger)(nil)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger Ledger
	log    zerolog.Logger
}

// NewHandler creates a new handler over the given ledger.
func NewHandler(ledger Ledger, log zerolog.Logger) *Handler {
	return &Handler{Ledger: ledger, log: log}
}

// =============================================================================
// POINT ENDPOINTS
// =============================================================================

// GetPoint returns the account's current balance.
func (h *Handler) GetPoint(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r, point.OpBalance)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	p, err := h.Ledger.Balance(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPointDTO(p))
}

// GetHistories returns the account's history, oldest first.
func (h *Handler) GetHistories(w http.ResponseWriter, r *http.Request) {
	id, err := accountParam(r, point.OpHistory)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	hs, err := h.Ledger.History(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPointHistoryDTOs(hs))
}

// Charge adds the body amount to the account.
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, point.OpCharge, h.Ledger.Charge)
}

// Use spends the body amount from the account.
func (h *Handler) Use(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, point.OpUse, h.Ledger.Use)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

type mutation func(ctx context.Context, id point.AccountID, amount int64) (point.UserPoint, error)

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op point.Op, apply mutation) {
	id, err := accountParam(r, op)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	amount, err := parseAmount(http.MaxBytesReader(w, r.Body, maxBodyBytes), op, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	p, err := apply(r.Context(), id, amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPointDTO(p))
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

// accountParam parses and validates the {id} path parameter.
func accountParam(r *http.Request, op point.Op) (point.AccountID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &point.ValidationError{
			Kind:    point.ErrInvalidAccount,
			Op:      op,
			Message: "account id must be an integer",
		}
	}
	id := point.AccountID(n)
	if err := point.ValidateAccount(op, id); err != nil {
		return 0, err
	}
	return id, nil
}

// parseAmount reads a bare JSON number or {"amount": n}. An empty body or a
// missing field reads as 0 and is rejected by the ledger as InvalidAmount.
func parseAmount(body io.Reader, op point.Op, id point.AccountID) (int64, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return 0, malformed(op, id, "request body could not be read")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, nil
	}

	var num json.Number
	if raw[0] == '{' {
		var req AmountRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return 0, malformed(op, id, "request body must be a number or {\"amount\": number}")
		}
		num = req.Amount
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			return 0, malformed(op, id, "request body must be a number or {\"amount\": number}")
		}
		n, ok := v.(json.Number)
		if !ok {
			return 0, malformed(op, id, "request body must be a number or {\"amount\": number}")
		}
		num = n
	}
	if num == "" {
		return 0, nil
	}
	return toAmount(num, op, id)
}

// maxIntegerDigits is the digit count of math.MaxInt64.
const maxIntegerDigits = 19

// toAmount converts a JSON number to an integral amount. Fractions are
// invalid; magnitudes beyond int64 are out of range, or invalid when negative.
// Exponent forms are classified from digit counts before any arithmetic, so
// "1e999999999" never expands into a huge integer.
func toAmount(num json.Number, op point.Op, id point.AccountID) (int64, error) {
	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return n, nil
	}

	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return 0, malformed(op, id, "amount must be a number")
	}
	if d.IsZero() {
		return 0, nil
	}

	digits := coefficientDigits(d)
	exp := int(d.Exponent())
	if digits+exp > maxIntegerDigits {
		return 0, tooLarge(d, op, id)
	}
	// A non-zero value whose digits all sit right of the point is below 1.
	if exp < 0 && (-exp >= digits || !d.IsInteger()) {
		return 0, fractional(op, id)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, tooLarge(d, op, id)
	}
	return d.IntPart(), nil
}

func coefficientDigits(d decimal.Decimal) int {
	c := d.Coefficient()
	return len(c.Abs(c).String())
}

func tooLarge(d decimal.Decimal, op point.Op, id point.AccountID) error {
	if d.IsNegative() {
		return &point.ValidationError{
			Kind:      point.ErrInvalidAmount,
			Op:        op,
			AccountID: id,
			Message:   string(op) + " amount must not be negative",
		}
	}
	return &point.ValidationError{
		Kind:      point.ErrAmountOutOfRange,
		Op:        op,
		AccountID: id,
		Message:   string(op) + " amount must be at most " + strconv.FormatInt(point.MaxAmount, 10),
	}
}

func fractional(op point.Op, id point.AccountID) error {
	return &point.ValidationError{
		Kind:      point.ErrInvalidAmount,
		Op:        op,
		AccountID: id,
		Message:   string(op) + " amount must be a whole number",
	}
}

func malformed(op point.Op, id point.AccountID, msg string) error {
	return &point.ValidationError{
		Kind:      point.ErrInvalidAmount,
		Op:        op,
		AccountID: id,
		Message:   msg,
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	code := point.Code(err)
	var verr *point.ValidationError
	if point.IsClientError(err) {
		var details *ErrorDetailsDTO
		if errors.As(err, &verr) {
			details = validationDetails(verr)
		}
		writeError(w, http.StatusBadRequest, code, err.Error(), details)
		return
	}

	// The cause stays in the log.
	h.log.Error().Err(err).Str("code", code).Msg("request failed")
	var serr *point.StorageError
	if errors.As(err, &serr) {
		writeError(w, http.StatusInternalServerError, code, "storage unavailable", &ErrorDetailsDTO{
			Op:     string(serr.Op),
			UserID: int64(serr.AccountID),
		})
		return
	}
	writeError(w, http.StatusInternalServerError, code, "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details *ErrorDetailsDTO) {
	resp := ErrorResponse{Error: message, Code: code}
	if details != nil {
		resp.Details = details
	}
	writeJSON(w, status, resp)
}

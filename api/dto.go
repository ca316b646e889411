/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the wire contract: ids stay numeric,
  timestamps go out as epoch milliseconds.

TYPES:
  UserPointDTO     GET /point/{id}, PATCH charge/use responses
  PointHistoryDTO  GET /point/{id}/histories elements
  AmountRequest    object form of the PATCH body
  ErrorResponse    every non-2xx response, with ErrorDetailsDTO

REQUEST BODY:
  PATCH bodies are either a bare JSON number (10000) or an object
  ({"amount": 10000}). See parseAmount in handlers.go.
*/
package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/warp/point-ledger/point"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserPointDTO represents an account balance in API responses.
type UserPointDTO struct {
	ID           int64 `json:"id"`
	Point        int64 `json:"point"`
	UpdateMillis int64 `json:"updateMillis"`
}

// PointHistoryDTO represents one committed charge or use.
type PointHistoryDTO struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"userId"`
	Amount       int64  `json:"amount"`
	Type         string `json:"type"`
	UpdateMillis int64  `json:"updateMillis"`
}

// AmountRequest is the object form of a charge or use body.
type AmountRequest struct {
	Amount json.Number `json:"amount"`
}

// HealthDTO is returned by GET /health.
type HealthDTO struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code,omitempty"`
	Details *ErrorDetailsDTO `json:"details,omitempty"`
}

// ErrorDetailsDTO carries the context of a rejected or failed operation.
// Balance is set only when a state check ran against it.
type ErrorDetailsDTO struct {
	Op      string `json:"op"`
	UserID  int64  `json:"userId,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Balance *int64 `json:"balance,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserPointDTO(p point.UserPoint) UserPointDTO {
	return UserPointDTO{
		ID:           int64(p.ID),
		Point:        p.Point,
		UpdateMillis: toMillis(p.UpdatedAt),
	}
}

func toPointHistoryDTOs(hs []point.PointHistory) []PointHistoryDTO {
	out := make([]PointHistoryDTO, 0, len(hs))
	for _, h := range hs {
		out = append(out, PointHistoryDTO{
			ID:           h.ID,
			UserID:       int64(h.AccountID),
			Amount:       h.Amount,
			Type:         string(h.Type),
			UpdateMillis: toMillis(h.Timestamp),
		})
	}
	return out
}

func validationDetails(e *point.ValidationError) *ErrorDetailsDTO {
	d := &ErrorDetailsDTO{
		Op:     string(e.Op),
		UserID: int64(e.AccountID),
		Amount: e.Amount,
	}
	if errors.Is(e.Kind, point.ErrBalanceLimitExceeded) || errors.Is(e.Kind, point.ErrInsufficientBalance) {
		balance := e.Balance
		d.Balance = &balance
	}
	return d
}

// toMillis maps the zero time to 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

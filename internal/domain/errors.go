package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Callers match them with errors.Is;
// handlers translate them to stable machine codes via ErrorCode.
var (
	// ErrInvalidInput marks a caller bug on an operation input. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidParameter marks a caller bug on a configuration or policy
	// parameter. Never retried.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData means fewer bars than the required window.
	// Fatal for the requesting computation only.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInsufficientFunds rejects a trade for lack of cash.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares rejects a sell or cover larger than the position.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrInsufficientMargin rejects a short entry for lack of margin collateral.
	ErrInsufficientMargin = errors.New("insufficient margin")

	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDataUnavailable means every provider failed or rate-limit starvation
	// exceeded the configured wait. Retry is the caller's decision.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrRateLimited is transient; the data facade retries it across
	// providers before reporting ErrDataUnavailable.
	ErrRateLimited = errors.New("rate limited")

	// ErrCancelled is returned when the caller's context is cancelled.
	// Cancellation takes effect between bar iterations, never mid-commit.
	ErrCancelled = errors.New("cancelled")

	// ErrInvariantViolation marks an internal bug. It fails loudly and is
	// never recovered from.
	ErrInvariantViolation = errors.New("invariant violation")
)

// RiskRejectedError rejects a trade at the pre-trade validator with a
// machine-readable reason code. Rejections are recorded as data in backtest
// outputs, never thrown out of the run loop.
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("risk rejected: %s", e.Reason)
}

// RejectionReason extracts the rejection reason code from an error produced
// by the validator or the portfolio commit path. Returns "" when the error
// is not a rejection.
func RejectionReason(err error) string {
	var rr *RiskRejectedError
	if errors.As(err, &rr) {
		return rr.Reason
	}
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInsufficientMargin):
		return "insufficient_margin"
	}
	return ""
}

// IsRejection reports whether the error is a trade rejection that a backtest
// should absorb into rejection_reasons and continue past.
func IsRejection(err error) bool {
	return RejectionReason(err) != ""
}

// ErrorCode maps an error to its stable machine-readable code for API
// responses and persisted run results.
func ErrorCode(err error) string {
	var rr *RiskRejectedError
	if errors.As(err, &rr) {
		return "risk_rejected"
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInsufficientMargin):
		return "insufficient_margin"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	}
	return "internal"
}

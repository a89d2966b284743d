package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrInvalidInput, "invalid_input"},
		{ErrInvalidParameter, "invalid_parameter"},
		{ErrInsufficientData, "insufficient_data"},
		{ErrInsufficientFunds, "insufficient_funds"},
		{ErrNotFound, "not_found"},
		{ErrDataUnavailable, "data_unavailable"},
		{ErrRateLimited, "rate_limited"},
		{ErrCancelled, "cancelled"},
		{fmt.Errorf("context: %w", ErrNotFound), "not_found"},
		{&RiskRejectedError{Reason: "position_too_large"}, "risk_rejected"},
		{fmt.Errorf("plain failure"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), "error %v", tt.err)
	}
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "position_too_large", RejectionReason(&RiskRejectedError{Reason: "position_too_large"}))
	assert.Equal(t, "insufficient_funds", RejectionReason(fmt.Errorf("buy: %w", ErrInsufficientFunds)))
	assert.Equal(t, "insufficient_shares", RejectionReason(ErrInsufficientShares))
	assert.Equal(t, "insufficient_margin", RejectionReason(ErrInsufficientMargin))
	assert.Empty(t, RejectionReason(ErrNotFound))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(&RiskRejectedError{Reason: "max_positions"}))
	assert.True(t, IsRejection(ErrInsufficientFunds))
	assert.False(t, IsRejection(ErrDataUnavailable))
	assert.False(t, IsRejection(nil))
}

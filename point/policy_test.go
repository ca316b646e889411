package point

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// REQUEST VALIDATION (checks 1-3)
// =============================================================================

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		op      Op
		id      AccountID
		amount  int64
		wantErr error
		wantMsg string
	}{
		{"valid minimum", OpCharge, 1, MinAmount, nil, ""},
		{"valid maximum", OpUse, 1, MaxAmount, nil, ""},
		{"negative account", OpCharge, -1, 10_000, ErrInvalidAccount, "account id must not be negative"},
		{"zero account", OpUse, 0, 10_000, ErrInvalidAccount, "account id must not be zero"},
		{"negative amount", OpCharge, 1, -10_000, ErrInvalidAmount, "charge amount must not be negative"},
		{"zero amount", OpUse, 1, 0, ErrInvalidAmount, "use amount must be greater than zero"},
		{"below minimum", OpCharge, 1, 999, ErrAmountOutOfRange, "charge amount must be at least 1000"},
		{"above maximum", OpUse, 1, 1_000_001, ErrAmountOutOfRange, "use amount must be at most 1000000"},
		// first failing check wins
		{"bad account and bad amount", OpCharge, 0, -5, ErrInvalidAccount, "account id must not be zero"},
		{"zero amount is not out of range", OpCharge, 1, 0, ErrInvalidAmount, "charge amount must be greater than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.op, tt.id, tt.amount)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.True(t, IsClientError(err))
			assert.False(t, IsStorageFault(err))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.op, verr.Op)
			assert.Equal(t, tt.id, verr.AccountID)
		})
	}
}

// =============================================================================
// STATE CHECKS (checks 4-5)
// =============================================================================

func TestValidateCharge(t *testing.T) {
	next, err := ValidateCharge(1, 50_000, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), next)

	next, err = ValidateCharge(1, 900_000, 100_000)
	require.NoError(t, err, "landing exactly on the limit is allowed")
	assert.Equal(t, MaxPoints, next)

	next, err = ValidateCharge(1, 900_000, 200_000)
	assert.ErrorIs(t, err, ErrBalanceLimitExceeded)
	assert.Equal(t, int64(900_000), next)
	assert.Equal(t, "balance after charge must not exceed 1000000", err.Error())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(900_000), verr.Balance)
}

func TestValidateUse(t *testing.T) {
	next, err := ValidateUse(1, 50_000, 50_000)
	require.NoError(t, err, "using the whole balance is allowed")
	assert.Equal(t, int64(0), next)

	_, err = ValidateUse(1, 1_000, 2_000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "use amount must not exceed the current balance", err.Error())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestStorageError_MatchesFaultAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&StorageError{Op: OpCharge, AccountID: 7, Err: cause})

	assert.ErrorIs(t, err, ErrStorageFault)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorageFault(err))
	assert.False(t, IsClientError(err))
	assert.Equal(t, "StorageFault", Code(err))
	assert.Contains(t, err.Error(), "account 7")
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "InvalidAccount", Code(ValidateAccount(OpBalance, 0)))
	assert.Equal(t, "AmountOutOfRange", Code(ValidateAmount(OpCharge, 1, 999)))
	_, err := ValidateUse(1, 0, 1_000)
	assert.Equal(t, "InsufficientBalance", Code(err))
	assert.Equal(t, "Internal", Code(errors.New("boom")))
}

// =============================================================================
// REPLAY
// =============================================================================

func TestReplay(t *testing.T) {
	hs := []PointHistory{
		{Amount: 10_000, Type: TxCharge},
		{Amount: 2_000, Type: TxUse},
		{Amount: 1_000, Type: TxCharge},
	}
	assert.Equal(t, int64(59_000), Replay(50_000, hs))
	assert.Equal(t, int64(50_000), Replay(50_000, nil))
}

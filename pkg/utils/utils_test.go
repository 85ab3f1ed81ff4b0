package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("  0x1000000000000000000000000000000000000004 ")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1000000000000000000000000000000000000004"), addr)

	for _, raw := range []string{"", "0x1234", "not-an-address", "0x0000000000000000000000000000000000000000"} {
		_, err := ParseAddress(raw)
		assert.Error(t, err, raw)
	}
}

func TestShortAddress(t *testing.T) {
	addr := common.HexToAddress("0x1000000000000000000000000000000000001234")
	assert.Equal(t, "0x1000...1234", ShortAddress(addr))
}

func TestAppError(t *testing.T) {
	t.Run("Is matches by code", func(t *testing.T) {
		err := NewAppError(ErrCodeAmbiguous, "staked event missing", "0xabc")
		assert.True(t, errors.Is(err, ErrAmbiguousOutcome))
		assert.False(t, errors.Is(err, ErrTransaction))

		wrapped := fmt.Errorf("stake: %w", err)
		assert.True(t, errors.Is(wrapped, ErrAmbiguousOutcome))
		assert.Equal(t, ErrCodeAmbiguous, CodeOf(wrapped))
	})

	t.Run("WrapError keeps the cause", func(t *testing.T) {
		cause := errors.New("execution reverted")
		err := WrapError(ErrCodeTransaction, "send failed", cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "execution reverted", err.Details)
		assert.Equal(t, "TRANSACTION_ERROR: send failed (execution reverted)", err.Error())
	})

	t.Run("CodeOf defaults to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))
	})
}

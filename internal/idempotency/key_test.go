package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		prospect, sequence string
		step               int
	}{
		{"p1", "s1", 1},
		{"6f1c2b7e-1d2a-4c55-9e0f-3b9b8d1c2a10", "seq-42", 3},
		{"a", "b", 1000},
	}

	for _, tc := range cases {
		key, err := Encode(tc.prospect, tc.sequence, tc.step)
		require.NoError(t, err)

		p, s, n, err := Decode(key)
		require.NoError(t, err)
		assert.Equal(t, tc.prospect, p)
		assert.Equal(t, tc.sequence, s)
		assert.Equal(t, tc.step, n)
	}
}

func TestEncodeFormat(t *testing.T) {
	key, err := Encode("p1", "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, "p1:s1:2", key)
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		prospect string
		sequence string
		step     int
	}{
		{"empty prospect", "", "s1", 1},
		{"blank sequence", "p1", "  ", 1},
		{"zero step", "p1", "s1", 0},
		{"negative step", "p1", "s1", -2},
		{"separator in id", "p:1", "s1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.prospect, tt.sequence, tt.step)
			require.Error(t, err)
			assert.Equal(t, appErrors.CodeValidation, appErrors.CodeOf(err))
		})
	}
}

func TestDecodeRejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"p1:s1",
		"p1:s1:2:extra",
		"p1::2",
		":s1:2",
		"p1:s1:",
		"p1:s1:zero",
		"p1:s1:0",
		"p1:s1:-1",
		"p1:s1:01",
		"p1:s1:2::CANCELLED::row-1",
	} {
		_, _, _, err := Decode(key)
		if assert.Error(t, err, key) {
			assert.Equal(t, appErrors.CodeMalformedKey, appErrors.CodeOf(err), key)
		}
		assert.False(t, IsValid(key), key)
	}
}

func TestCancelledKey(t *testing.T) {
	key := Cancelled("p1:s1:1", "row-9")
	assert.Equal(t, "p1:s1:1::CANCELLED::row-9", key)
	assert.True(t, IsCancelled(key))
	assert.Equal(t, key, Cancelled(key, "row-10"))
	assert.False(t, IsCancelled("p1:s1:1"))
}

package tron

import (
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSunToTRX(t *testing.T) {
	assert.True(t, SunToTRX(10_000_000).Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "0.000001", SunToTRX(1).String())
	assert.Equal(t, "15.5", SunToTRX(15_500_000).String())
}

func TestTRXToSunTruncatesTowardZero(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"16", 16_000_000},
		{"0.0000019", 1},
		{"1.2345678", 1_234_567},
		{"-0.0000019", -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TRXToSun(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestAddressEncoding(t *testing.T) {
	raw, err := hex.DecodeString("41a614f803b6fd780986a42c78ec9c7f77e6ded13c")
	require.NoError(t, err)
	assert.Equal(t, usdtContract, encodeCheck(raw))

	payload, ok := decodeCheck(usdtContract)
	require.True(t, ok)
	assert.Equal(t, raw, payload)

	assert.True(t, IsValidAddress(usdtContract))
	assert.False(t, IsValidAddress("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u"))
	assert.False(t, IsValidAddress("T123"))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("0OIl"))
}

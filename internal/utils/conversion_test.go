package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestSDKIntToFloat64(t *testing.T) {
	t.Parallel()

	f, err := SDKIntToFloat64(sdkmath.NewInt(3_000_000_000_000_000), 18)
	require.NoError(t, err)
	require.InDelta(t, 0.003, f, 1e-12)

	f, err = SDKIntToFloat64(sdkmath.NewInt(42), 0)
	require.NoError(t, err)
	require.Equal(t, 42.0, f)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	require.ErrorIs(t, err, ErrInvalidPrecision)
	_, err = SDKIntToFloat64(sdkmath.Int{}, 0)
	require.ErrorIs(t, err, ErrAmountNil)
	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 0)
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	amount, err := ParseAmount(" 1000000000000000000000 ")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", amount.String())

	_, err = ParseAmount("")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("1.5")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("-3")
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestParseDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "-1500", want: -1500},
		{in: " 42 ", want: 42},
		{in: "", want: 0},
		{in: "1.5", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDelta(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidAmount, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got.Int64(), tc.in)
	}
}

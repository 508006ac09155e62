package units

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/container-tools/cgpress/pkg/errors"
)

func TestParseSize_BareNumber(t *testing.T) {
	n, err := ParseSize("4096")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)
}

func TestParseSize_Suffixes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1k", 1024},
		{"1ki", 1024},
		{"1m", 1024 * 1024},
		{"1mi", 1024 * 1024},
		{"1g", 1024 * 1024 * 1024},
		{"1gi", 1024 * 1024 * 1024},
		{"1t", 1024 * 1024 * 1024 * 1024},
		{"1ti", 1024 * 1024 * 1024 * 1024},
		{"2Ki", 2048},
		{"128Mi", 128 * MiB},
		{"8Gi", 8 * GiB},
		{"1.5Gi", GiB + GiB/2},
		{"0", 0},
		{" 64Mi ", 64 * MiB},
		{"512K", 512 * KiB},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestParseSize_CaseInsensitive(t *testing.T) {
	for _, input := range []string{"5MI", "5Mi", "5mI", "5mi"} {
		n, err := ParseSize(input)
		require.NoError(t, err)
		assert.Equal(t, 5*MiB, n)
	}
}

func TestParseSize_BareNumberMustBeWholeBytes(t *testing.T) {
	// Fractional values only make sense with a unit suffix; "1.5" as a raw
	// byte count would silently truncate to 1 byte.
	for _, input := range []string{"1.5", "0.5", "2e3"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSize(input)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}

	n, err := ParseSize("1.5Gi")
	require.NoError(t, err)
	assert.Equal(t, GiB+GiB/2, n)
}

func TestParseSize_Invalid(t *testing.T) {
	for _, input := range []string{"", "  ", "abc", "12q", "mi", "--5mi"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			_, err := ParseSize(input)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestHumanBytes_SmallValuesUseB(t *testing.T) {
	assert.Equal(t, "0.00 B", HumanBytes(0))
	assert.Equal(t, "512.00 B", HumanBytes(512))
	assert.Equal(t, "1023.00 B", HumanBytes(1023))
}

func TestHumanBytes_UnitBoundaries(t *testing.T) {
	assert.Equal(t, "1.00 KiB", HumanBytes(1024))
	assert.Equal(t, "1.00 MiB", HumanBytes(MiB))
	assert.Equal(t, "2.50 MiB", HumanBytes(2*MiB+MiB/2))
	assert.Equal(t, "1.00 GiB", HumanBytes(GiB))
	assert.Equal(t, "1.00 TiB", HumanBytes(TiB))
	assert.Equal(t, "2048.00 TiB", HumanBytes(2048*TiB))
}

func TestHumanBytes_UnitMonotonicallyNonDecreasing(t *testing.T) {
	unitRank := map[string]int{"B": 0, "KiB": 1, "MiB": 2, "GiB": 3, "TiB": 4}
	previous := 0
	for n := int64(1); n > 0 && n < TiB*16; n *= 8 {
		var value float64
		var unit string
		_, err := fmt.Sscanf(HumanBytes(n), "%f %s", &value, &unit)
		require.NoError(t, err)
		rank, ok := unitRank[unit]
		require.True(t, ok, "unknown unit %q", unit)
		assert.GreaterOrEqual(t, rank, previous)
		previous = rank
	}
}

func TestHumanBytesPtr(t *testing.T) {
	assert.Equal(t, "n/a", HumanBytesPtr(nil))
	v := 64 * MiB
	assert.Equal(t, "64.00 MiB", HumanBytesPtr(&v))
}

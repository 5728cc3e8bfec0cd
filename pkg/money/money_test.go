package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Parsing Tests
// ============================================================================

func TestGermanParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"thousands and decimals", "1.234,56", "1234.56"},
		{"negative with thousands", "-2.500,50", "-2500.5"},
		{"no thousands separator", "999,99", "999.99"},
		{"round thousands", "5.000,00", "5000"},
		{"small value", "45,00", "45"},
		{"millions", "1.234.567,89", "1234567.89"},
		{"unicode minus", "−12,30", "-12.3"},
		{"trailing minus", "8.250,00-", "-8250"},
		{"trailing unicode minus", "12,30−", "-12.3"},
		{"explicit plus", "+3,10", "3.1"},
		{"surrounding spaces", "  7,05 ", "7.05"},
		{"zero", "0,00", "0"},
		{"integer", "120", "120"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := German.Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestGermanParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only sign", "-"},
		{"letters", "12a,00"},
		{"multiple decimal commas", "1,2,3"},
		{"currency symbol", "12,34€"},
		{"exponent", "1e5"},
		{"double minus", "--5,00"},
		{"separators only", ".,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := German.Parse(tt.input)
			require.Error(t, err)
			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.input, fe.Token)
			assert.True(t, got.IsZero())
		})
	}
}

func TestStandardParse(t *testing.T) {
	got, err := Standard.Parse("1234.56")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", got.StringFixed(2))

	_, err = Standard.Parse("1.234,56")
	assert.Error(t, err)
}

func TestLooksLikeAmount(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"1.234,56", true},
		{"-2,00", true},
		{"0,00-", true},
		{"1,2,3", true},
		{"12,5x", true},
		{"Umsatzerlöse", false},
		{"2024", false},
		{"1.", false},
		{"u.", false},
		{",50", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, German.LooksLikeAmount(tt.token))
		})
	}
}

func TestLocaleByName(t *testing.T) {
	l, err := LocaleByName("de-DE")
	require.NoError(t, err)
	assert.Equal(t, German, l)

	l, err = LocaleByName("")
	require.NoError(t, err)
	assert.Equal(t, Standard, l)

	_, err = LocaleByName("fr")
	assert.Error(t, err)
}

// ============================================================================
// Formatting Tests
// ============================================================================

func TestGermanFormat(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1234.56", "1.234,56"},
		{"-2500.5", "-2.500,50"},
		{"0", "0,00"},
		{"0.05", "0,05"},
		{"-0.5", "-0,50"},
		{"1234567.891", "1.234.567,89"},
		{"999.995", "1.000,00"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, German.Format(decimal.RequireFromString(tt.input)))
		})
	}
}

func TestStandardFormat(t *testing.T) {
	assert.Equal(t, "15750.45", Standard.Format(decimal.RequireFromString("15750.45")))
	assert.Equal(t, "-8250.00", Standard.Format(decimal.RequireFromString("-8250")))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "15.750,45 €", Display(decimal.RequireFromString("15750.45")))
}

func TestMinorUnits(t *testing.T) {
	d := decimal.RequireFromString("-12.345")
	assert.Equal(t, int64(-1235), ToMinorUnits(d, 2))
	assert.True(t, FromMinorUnits(-1235, 2).Equal(decimal.RequireFromString("-12.35")))
}

// ============================================================================
// Property Tests
// ============================================================================

func TestGermanRoundTrip(t *testing.T) {
	gen := NewTestDataGeneratorWithSeed(42)

	for i := 0; i < 500; i++ {
		want := gen.SignedAmount()
		formatted := German.Format(want)

		got, err := German.Parse(formatted)
		require.NoError(t, err, "formatted %q", formatted)
		require.True(t, want.Equal(got), "round trip %s -> %q -> %s", want, formatted, got)
	}
}

func TestStandardRoundTrip(t *testing.T) {
	gen := NewTestDataGeneratorWithSeed(7)

	for i := 0; i < 200; i++ {
		want := gen.SignedAmount()
		got, err := Standard.Parse(Standard.Format(want))
		require.NoError(t, err)
		require.True(t, want.Equal(got))
	}
}

// Package money converts between locale-formatted amount strings and exact
// decimal values. Parsing and formatting are driven by an explicit Locale
// value; nothing in this package reads host locale settings.
package money

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	EUR = "EUR"

	unicodeMinus = "−"
)

// Locale describes how amounts are written in a document.
type Locale struct {
	ThousandsSep string
	DecimalSep   string
	Fraction     int
}

var (
	// German is the convention used by BWA reports: "1.234,56".
	German = Locale{ThousandsSep: ".", DecimalSep: ",", Fraction: 2}
	// Standard is the dot-decimal convention without grouping: "1234.56".
	Standard = Locale{ThousandsSep: "", DecimalSep: ".", Fraction: 2}
)

// LocaleByName resolves a configured locale name.
func LocaleByName(name string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "de", "de-de", "german":
		return German, nil
	case "", "standard", "c", "en":
		return Standard, nil
	}
	return Locale{}, fmt.Errorf("unknown locale %q", name)
}

// FormatError reports a token that is not a valid amount in the locale.
type FormatError struct {
	Token  string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid amount %q: %s", e.Token, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Parse converts token to an exact decimal. A leading "-" (or U+2212) and
// a trailing "-" both mark a negative amount. Thousands separators are
// stripped and the decimal separator becomes ".". Anything else that is
// not a plain decimal literal fails with *FormatError; there is no zero
// fallback.
func (l Locale) Parse(token string) (decimal.Decimal, error) {
	s := strings.TrimFunc(token, unicode.IsSpace)
	if s == "" {
		return decimal.Zero, &FormatError{Token: token, Reason: "empty"}
	}

	negative, body := splitSign(s)
	if body == "" {
		return decimal.Zero, &FormatError{Token: token, Reason: "sign without digits"}
	}

	if l.ThousandsSep != "" {
		body = strings.ReplaceAll(body, l.ThousandsSep, "")
	}
	if l.DecimalSep != "." {
		if strings.Contains(body, ".") {
			return decimal.Zero, &FormatError{Token: token, Reason: "unexpected '.'"}
		}
		body = strings.ReplaceAll(body, l.DecimalSep, ".")
	}

	digits := 0
	points := 0
	for _, r := range body {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			points++
		default:
			return decimal.Zero, &FormatError{Token: token, Reason: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	if digits == 0 {
		return decimal.Zero, &FormatError{Token: token, Reason: "no digits"}
	}
	if points > 1 {
		return decimal.Zero, &FormatError{Token: token, Reason: "more than one decimal separator"}
	}

	d, err := decimal.NewFromString(body)
	if err != nil {
		return decimal.Zero, &FormatError{Token: token, Reason: "not a decimal literal", Err: err}
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func (l Locale) MustParse(token string) decimal.Decimal {
	d, err := l.Parse(token)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders d with the locale's separators, rounded to Fraction digits.
func (l Locale) Format(d decimal.Decimal) string {
	f := money.NewFormatter(l.Fraction, l.DecimalSep, l.ThousandsSep, "", "1")
	return f.Format(ToMinorUnits(d, l.Fraction))
}

// LooksLikeAmount reports whether token should be treated as an amount cell
// rather than label text: an optional sign, a leading digit, and at least one
// decimal separator. Such tokens must then pass Parse.
func (l Locale) LooksLikeAmount(token string) bool {
	_, body := splitSign(strings.TrimFunc(token, unicode.IsSpace))
	if body == "" || body[0] < '0' || body[0] > '9' {
		return false
	}
	return strings.Contains(body, l.DecimalSep)
}

// ToMinorUnits converts d to an integer count of 10^-fraction units,
// rounding half away from zero.
func ToMinorUnits(d decimal.Decimal, fraction int) int64 {
	return d.Shift(int32(fraction)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(units int64, fraction int) decimal.Decimal {
	return decimal.New(units, -int32(fraction))
}

// Display formats d as a Euro amount for log lines and messages ("1.234,56 €").
func Display(d decimal.Decimal) string {
	return German.Format(d) + " " + money.GetCurrency(EUR).Grapheme
}

func splitSign(s string) (negative bool, body string) {
	switch {
	case strings.HasPrefix(s, "-"):
		return true, s[1:]
	case strings.HasPrefix(s, unicodeMinus):
		return true, s[len(unicodeMinus):]
	case strings.HasPrefix(s, "+"):
		return false, s[1:]
	case strings.HasSuffix(s, "-"):
		return true, s[:len(s)-1]
	case strings.HasSuffix(s, unicodeMinus):
		return true, s[:len(s)-len(unicodeMinus)]
	}
	return false, s
}

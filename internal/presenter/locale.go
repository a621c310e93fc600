package presenter

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale holds resolved formatting conventions for dates and numbers.
type Locale struct {
	tag     language.Tag
	printer *message.Printer
}

// DetectLocale resolves the user's locale from environment variables.
// Falls back to en-US if nothing is set or parseable.
func DetectLocale() Locale {
	raw := os.Getenv("LC_ALL")
	if raw == "" {
		raw = os.Getenv("LC_MONETARY")
	}
	if raw == "" {
		raw = os.Getenv("LANG")
	}
	return NewLocale(raw)
}

// NewLocale creates a Locale from a POSIX locale string (e.g. "hi_IN.UTF-8")
// or BCP 47 tag (e.g. "en-IN"). Returns en-US for empty or unparseable input.
func NewLocale(raw string) Locale {
	if idx := strings.IndexByte(raw, '.'); idx != -1 {
		raw = raw[:idx]
	}
	raw = strings.ReplaceAll(raw, "_", "-")

	tag, _ := language.Parse(raw)
	if tag == language.Und || raw == "C" || raw == "POSIX" {
		tag = language.AmericanEnglish
	}

	return Locale{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}
}

// Tag returns the resolved language tag.
func (l Locale) Tag() language.Tag {
	return l.tag
}

// FormatNumber formats v with locale grouping and at most two decimals.
func (l Locale) FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return l.printer.Sprint(number.Decimal(int64(v)))
	}
	return l.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// FormatDateTime formats t for display in order listings.
func (l Locale) FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	region, _ := l.tag.Region()
	if region.String() == "US" {
		return t.Format("Jan 2, 2006 3:04 PM")
	}
	return t.Format("2 Jan 2006 15:04")
}

// Money formats amounts of a single currency.
type Money struct {
	unit    currency.Unit
	symbol  string
	printer *message.Printer
}

// NewMoney creates a formatter for the ISO 4217 code. Unknown codes fall
// back to INR, the backend's pricing currency.
func NewMoney(code string, l Locale) Money {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.INR
	}
	symbol := l.printer.Sprint(currency.NarrowSymbol(unit))
	if symbol == "" {
		symbol = unit.String() + " "
	}
	return Money{unit: unit, symbol: symbol, printer: l.printer}
}

// Code returns the ISO 4217 code.
func (m Money) Code() string {
	return m.unit.String()
}

// Format renders v with the currency symbol and exactly two decimals.
func (m Money) Format(v float64) string {
	digits := m.printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	if strings.HasPrefix(digits, "-") {
		return "-" + m.symbol + strings.TrimPrefix(digits, "-")
	}
	return fmt.Sprintf("%s%s", m.symbol, digits)
}

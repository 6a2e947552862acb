package options

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes put and call contracts.
type Type string

const (
	TypePut  Type = "put"
	TypeCall Type = "call"
)

var (
	ErrMalformedSymbol   = errors.New("malformed option symbol")
	ErrBadExpiryDate     = errors.New("option symbol has invalid expiry date")
	ErrMissingTypeMarker = errors.New("option symbol has no put/call marker")
	ErrBadStrike         = errors.New("option symbol has non-numeric strike")
)

// ContractRef identifies a single listed option contract. It is derived
// deterministically from the compact gateway symbol and immutable once parsed.
type ContractRef struct {
	Ticker string          `json:"ticker"`
	Type   Type            `json:"type"`
	Expiry time.Time       `json:"expiry"`
	Strike decimal.Decimal `json:"strike"`
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
}

// ParseSymbol decodes a compact option symbol such as "AAPL240621C195000.US".
// Layout after the exchange suffix is stripped: a 1-4 letter ticker, a YYMMDD
// expiry, a P/C marker, then the strike encoded in integer thousandths.
// Malformed symbols are reported as errors, never silently defaulted.
func ParseSymbol(symbol string) (ContractRef, error) {
	body, _, _ := strings.Cut(symbol, ".")

	letters := 0
	for letters < len(body) && isUpperLetter(body[letters]) {
		letters++
	}
	if letters < 1 || letters > 4 {
		return ContractRef{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, symbol)
	}
	if len(body) < letters+6+1+1 {
		return ContractRef{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, symbol)
	}

	ticker := strings.ToLower(body[:letters])

	expiry, err := time.Parse("060102", body[letters:letters+6])
	if err != nil {
		return ContractRef{}, fmt.Errorf("%w: %q", ErrBadExpiryDate, symbol)
	}

	var typ Type
	switch body[letters+6] {
	case 'P':
		typ = TypePut
	case 'C':
		typ = TypeCall
	default:
		return ContractRef{}, fmt.Errorf("%w: %q", ErrMissingTypeMarker, symbol)
	}

	thousandths, err := strconv.ParseInt(body[letters+7:], 10, 64)
	if err != nil || thousandths < 0 {
		return ContractRef{}, fmt.Errorf("%w: %q", ErrBadStrike, symbol)
	}

	ref := ContractRef{
		Ticker: ticker,
		Type:   typ,
		Expiry: expiry,
		Strike: decimal.New(thousandths, -3),
		Symbol: symbol,
	}
	ref.Name = ref.DisplayName()
	return ref, nil
}

// FormatSymbol is the inverse of ParseSymbol: it renders the contract as an
// exchange-qualified compact symbol. ParseSymbol(FormatSymbol(ref)) round-trips
// for strikes with up to three fractional decimal digits.
func FormatSymbol(ticker string, typ Type, expiry time.Time, strike decimal.Decimal) string {
	marker := "C"
	if typ == TypePut {
		marker = "P"
	}
	thousandths := strike.Shift(3).IntPart()
	return strings.ToUpper(ticker) + expiry.Format("060102") + marker +
		strconv.FormatInt(thousandths, 10) + ".US"
}

// DisplayName renders a human-readable contract name, e.g. "AAPL 06/21 Call 195".
func (r ContractRef) DisplayName() string {
	title := "Call"
	if r.Type == TypePut {
		title = "Put"
	}
	return fmt.Sprintf("%s %s %s %s", strings.ToUpper(r.Ticker), r.Expiry.Format("01/02"), title, r.Strike.String())
}

func isUpperLetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

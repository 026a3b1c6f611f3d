package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// FormatOptionTicker builds the provider's option symbol:
// O:{SYMBOL}{YYMMDD}{C|P}{strike x 1000, zero-padded to 8 digits}.
func FormatOptionTicker(symbol string, expiration time.Time, optionType models.OptionType, strike float64) string {
	cp := "C"
	if optionType == models.OptionTypePut {
		cp = "P"
	}
	// decimal keeps 130.50*1000 at exactly 130500
	milli := decimal.NewFromFloat(strike).Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
	return fmt.Sprintf("O:%s%s%s%08d", strings.ToUpper(strings.TrimSpace(symbol)), expiration.Format("060102"), cp, milli)
}

// ParsedOptionTicker is the decoded form of an option symbol.
type ParsedOptionTicker struct {
	Underlying string
	Expiration models.Date
	Type       models.OptionType
	Strike     float64
}

// ParseOptionTicker is the inverse of FormatOptionTicker.
func ParseOptionTicker(s string) (ParsedOptionTicker, error) {
	body, ok := strings.CutPrefix(s, "O:")
	// root(1+) + YYMMDD + C/P + 8 digits
	if !ok || len(body) < 16 {
		return ParsedOptionTicker{}, fmt.Errorf("malformed option ticker %q", s)
	}
	tail := body[len(body)-15:]
	root := body[:len(body)-15]

	exp, err := time.Parse("060102", tail[:6])
	if err != nil {
		return ParsedOptionTicker{}, fmt.Errorf("option ticker %q: bad expiration: %w", s, err)
	}
	var typ models.OptionType
	switch tail[6] {
	case 'C':
		typ = models.OptionTypeCall
	case 'P':
		typ = models.OptionTypePut
	default:
		return ParsedOptionTicker{}, fmt.Errorf("option ticker %q: bad type %q", s, tail[6])
	}
	milli, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return ParsedOptionTicker{}, fmt.Errorf("option ticker %q: bad strike: %w", s, err)
	}

	return ParsedOptionTicker{
		Underlying: root,
		Expiration: models.NewDate(exp),
		Type:       typ,
		Strike:     decimal.New(milli, -3).InexactFloat64(),
	}, nil
}

// PositionOptionTicker returns the option symbol for an option position.
func PositionOptionTicker(p *models.Position) string {
	return FormatOptionTicker(p.Ticker, p.Expiration.Time, p.OptionType, p.Strike)
}

// SelectPrice picks a single price for a contract:
// mid when both sides are quoted, then bid, then ask, then last close, else 0 (unknown).
func SelectPrice(bid, ask, lastClose float64) float64 {
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	case ask > 0:
		return ask
	case lastClose > 0:
		return lastClose
	default:
		return 0.0
	}
}

// ContractPrice applies SelectPrice to a contract snapshot.
func ContractPrice(c models.OptionContract) float64 {
	return SelectPrice(c.Bid, c.Ask, c.LastClose)
}

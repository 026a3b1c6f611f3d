package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestPosition_Validate(t *testing.T) {
	exp := mustDate(t, "2027-01-15")
	tests := []struct {
		name    string
		pos     Position
		wantErr bool
	}{
		{"valid stock", Position{Type: PositionStock, Ticker: "AAPL", Quantity: 100, EntryPrice: 150}, false},
		{"valid short put", Position{Type: PositionOption, Ticker: "AAPL", Quantity: -1, EntryPrice: 2.5,
			OptionType: OptionTypePut, Strike: 140, Expiration: exp}, false},
		{"missing ticker", Position{Type: PositionStock, Quantity: 1}, true},
		{"zero quantity", Position{Type: PositionStock, Ticker: "AAPL"}, true},
		{"unknown type", Position{Type: "bond", Ticker: "AAPL", Quantity: 1}, true},
		{"option without strike", Position{Type: PositionOption, Ticker: "AAPL", Quantity: 1,
			OptionType: OptionTypeCall, Expiration: exp}, true},
		{"option without expiration", Position{Type: PositionOption, Ticker: "AAPL", Quantity: 1,
			OptionType: OptionTypeCall, Strike: 100}, true},
		{"option bad type", Position{Type: PositionOption, Ticker: "AAPL", Quantity: 1,
			OptionType: "straddle", Strike: 100, Expiration: exp}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pos.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPosition_ValueSignedQuantity(t *testing.T) {
	tests := []struct {
		name    string
		pos     Position
		price   float64
		wantPnL float64
		stale   bool
	}{
		{
			name:    "long stock gain",
			pos:     Position{Type: PositionStock, Quantity: 10, EntryPrice: 100},
			price:   110,
			wantPnL: 100,
		},
		{
			name:    "short put premium decay is a gain",
			pos:     Position{Type: PositionOption, OptionType: OptionTypePut, Quantity: -2, EntryPrice: 3.0},
			price:   1.0,
			wantPnL: 400, // (-2*1*100) - (-2*3*100)
		},
		{
			name:    "long call loss",
			pos:     Position{Type: PositionOption, OptionType: OptionTypeCall, Quantity: 1, EntryPrice: 20},
			price:   15,
			wantPnL: -500,
		},
		{
			name:    "unknown price falls back to entry",
			pos:     Position{Type: PositionOption, OptionType: OptionTypeCall, Quantity: 1, EntryPrice: 20},
			price:   0,
			wantPnL: 0,
			stale:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.pos.Value(tt.price)
			if math.Abs(v.UnrealizedPnL-tt.wantPnL) > 1e-9 {
				t.Errorf("UnrealizedPnL = %v, want %v", v.UnrealizedPnL, tt.wantPnL)
			}
			if v.PriceIsStale != tt.stale {
				t.Errorf("PriceIsStale = %v, want %v", v.PriceIsStale, tt.stale)
			}
		})
	}
}

func TestPosition_ProfitCaptured(t *testing.T) {
	p := Position{Type: PositionOption, OptionType: OptionTypeCall, Quantity: -1, EntryPrice: 2.0}
	if got := p.ProfitCaptured(0.8); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("ProfitCaptured(0.8) = %v, want 0.6", got)
	}
	p.EntryPrice = 0
	if got := p.ProfitCaptured(0.8); got != 0 {
		t.Errorf("ProfitCaptured with zero entry = %v, want 0", got)
	}
}

func TestPosition_CalculateDTE(t *testing.T) {
	now := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	p := Position{Type: PositionOption, Expiration: mustDate(t, "2026-02-04")}
	if got := p.CalculateDTE(now); got != 30 {
		t.Errorf("CalculateDTE = %d, want 30", got)
	}
	p.Expiration = mustDate(t, "2025-12-01")
	if got := p.CalculateDTE(now); got != 0 {
		t.Errorf("CalculateDTE for expired = %d, want 0", got)
	}
}

func TestDaysFrom_UsesExchangeDate(t *testing.T) {
	// 21:00 ET on 2026-01-06 is already 2026-01-07 in UTC.
	evening := time.Date(2026, 1, 7, 2, 0, 0, 0, time.UTC)
	exp := mustDate(t, "2026-01-27")

	if got := ExchangeDate(evening).String(); got != "2026-01-06" {
		t.Errorf("ExchangeDate = %s, want 2026-01-06", got)
	}
	if got := exp.DaysFrom(evening); got != 21 {
		t.Errorf("DaysFrom = %d, want 21", got)
	}
	c := OptionContract{Expiration: exp}
	if got := c.DaysToExpirationAt(evening); got != 21 {
		t.Errorf("DaysToExpirationAt = %d, want 21", got)
	}
	p := Position{Type: PositionOption, Expiration: exp}
	if got := p.CalculateDTE(evening); got != 21 {
		t.Errorf("CalculateDTE = %d, want 21", got)
	}
	// Same instant seen from the exchange's own zone.
	if got := exp.DaysFrom(evening.In(ExchangeLocation)); got != 21 {
		t.Errorf("DaysFrom in exchange zone = %d, want 21", got)
	}
}

func TestStockIndicatorSet_EarningsDateRoundTrip(t *testing.T) {
	earnings := mustDate(t, "2026-02-25")
	days := 12
	in := StockIndicatorSet{
		Ticker:         "GOOGL",
		CurrentPrice:   190.5,
		EarningsDate:   &earnings,
		DaysToEarnings: &days,
		Support:        []float64{180, 175},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out StockIndicatorSet
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.EarningsDate == nil {
		t.Fatal("EarningsDate lost in round trip")
	}
	if !out.EarningsDate.Equal(earnings.Time) {
		t.Errorf("EarningsDate = %v, want %v", out.EarningsDate, earnings)
	}
	if out.EarningsDate.Year() != 2026 || out.EarningsDate.Month() != time.February || out.EarningsDate.Day() != 25 {
		t.Errorf("EarningsDate components wrong: %v", out.EarningsDate)
	}
	if out.DaysToEarnings == nil || *out.DaysToEarnings != 12 {
		t.Errorf("DaysToEarnings = %v, want 12", out.DaysToEarnings)
	}
}

func TestDate_UnmarshalVariants(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`"2026-02-25"`, "2026-02-25", false},
		{`"2026-02-25T00:00:00Z"`, "2026-02-25", false},
		{`null`, "", false},
		{`""`, "", false},
		{`20260225`, "", true},
		{`"25/02/2026"`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Date
			err := json.Unmarshal([]byte(tt.in), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.String() != tt.want {
				t.Errorf("got %q, want %q", d.String(), tt.want)
			}
		})
	}
}

func TestOptionsChain_FilterSortsByDeltaCenter(t *testing.T) {
	exp := mustDate(t, "2026-03-20")
	chain := &OptionsChain{Contracts: []OptionContract{
		{Type: OptionTypePut, Strike: 90, Expiration: exp, DaysToExpiration: 30, Greeks: Greeks{Delta: -0.21}},
		{Type: OptionTypePut, Strike: 95, Expiration: exp, DaysToExpiration: 30, Greeks: Greeks{Delta: -0.26}},
		{Type: OptionTypePut, Strike: 100, Expiration: exp, DaysToExpiration: 30, Greeks: Greeks{Delta: -0.45}},
		{Type: OptionTypeCall, Strike: 110, Expiration: exp, DaysToExpiration: 30, Greeks: Greeks{Delta: 0.25}},
		{Type: OptionTypePut, Strike: 85, Expiration: exp, DaysToExpiration: 60, Greeks: Greeks{Delta: -0.25}},
	}}

	got := chain.Filter(ContractFilter{Type: OptionTypePut, MinDTE: 21, MaxDTE: 45, MinDelta: 0.20, MaxDelta: 0.30})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Strike != 95 || got[1].Strike != 90 {
		t.Errorf("order = [%v %v], want [95 90]", got[0].Strike, got[1].Strike)
	}
}

func TestBucketForDTE(t *testing.T) {
	tests := []struct {
		dte  int
		want MaturityBucket
	}{
		{0, BucketShortTerm},
		{60, BucketShortTerm},
		{61, BucketMediumTerm},
		{364, BucketMediumTerm},
		{365, BucketLongTerm},
		{900, BucketLongTerm},
	}
	for _, tt := range tests {
		if got := BucketForDTE(tt.dte); got != tt.want {
			t.Errorf("BucketForDTE(%d) = %s, want %s", tt.dte, got, tt.want)
		}
	}
}

func TestFindLEAPS(t *testing.T) {
	positions := []Position{
		{ID: "near", Type: PositionOption, Ticker: "AAPL", Quantity: 1, OptionType: OptionTypeCall, Strike: 200, Expiration: mustDate(t, "2026-06-19")},
		{ID: "far", Type: PositionOption, Ticker: "AAPL", Quantity: 1, OptionType: OptionTypeCall, Strike: 180, Expiration: mustDate(t, "2027-12-17")},
		{ID: "short", Type: PositionOption, Ticker: "AAPL", Quantity: -1, OptionType: OptionTypeCall, Strike: 250, Expiration: mustDate(t, "2028-01-21")},
		{ID: "other", Type: PositionOption, Ticker: "MSFT", Quantity: 1, OptionType: OptionTypeCall, Strike: 400, Expiration: mustDate(t, "2028-01-21")},
	}
	got := FindLEAPS(positions, "AAPL")
	if got == nil || got.ID != "far" {
		t.Fatalf("FindLEAPS() = %+v, want far", got)
	}
	if FindLEAPS(positions, "NVDA") != nil {
		t.Fatal("FindLEAPS() found a position for an unheld ticker")
	}
}

func TestStockCostBasis(t *testing.T) {
	positions := []Position{
		{Type: PositionStock, Ticker: "MSFT", Quantity: 100, EntryPrice: 400},
		{Type: PositionStock, Ticker: "MSFT", Quantity: 50, EntryPrice: 430},
		{Type: PositionStock, Ticker: "MSFT", Quantity: -10, EntryPrice: 500},
	}
	basis, ok := StockCostBasis(positions, "MSFT")
	if !ok || math.Abs(basis-410) > 1e-9 {
		t.Fatalf("StockCostBasis() = %v, %v; want 410", basis, ok)
	}
	if _, ok := StockCostBasis(positions, "AAPL"); ok {
		t.Fatal("StockCostBasis() reported a basis without shares")
	}
}

package market

import (
	"testing"
	"time"
)

func et(t *testing.T, c *Clock, s string) time.Time {
	t.Helper()
	tm, err := time.ParseInLocation("2006-01-02 15:04", s, c.Location())
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}

func TestClock_IsMarketOpen(t *testing.T) {
	c := NewClock()
	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"tuesday mid-session", "2026-01-06 10:00", true},
		{"open is inclusive", "2026-01-06 09:30", true},
		{"close is exclusive", "2026-01-06 16:00", false},
		{"pre-market", "2026-01-06 09:29", false},
		{"evening", "2026-01-06 20:00", false},
		{"saturday", "2026-01-10 11:00", false},
		{"sunday", "2026-01-11 11:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsMarketOpen(et(t, c, tt.at)); got != tt.want {
				t.Errorf("IsMarketOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestClock_SecondsUntilOpen(t *testing.T) {
	c := NewClock()
	tests := []struct {
		name string
		at   string
		want int
	}{
		{"open returns zero", "2026-01-06 10:00", 0},
		{"monday 09:00", "2026-01-05 09:00", 1800},
		{"tuesday 20:00 to wednesday open", "2026-01-06 20:00", 13*3600 + 1800},
		{"friday after close to monday", "2026-01-09 16:00", 2*86400 + 17*3600 + 1800},
		{"saturday noon", "2026-01-10 12:00", 86400 + 21*3600 + 1800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.SecondsUntilOpen(et(t, c, tt.at)); got != tt.want {
				t.Errorf("SecondsUntilOpen(%s) = %d, want %d", tt.at, got, tt.want)
			}
		})
	}
}

func TestClock_CacheTTLSeconds(t *testing.T) {
	c := NewClock()
	tests := []struct {
		name string
		at   string
		want int
	}{
		{"tuesday 10:00 open", "2026-01-06 10:00", 600},
		{"tuesday 20:00 closed far from open", "2026-01-06 20:00", 3600},
		{"monday 09:00 half hour to open", "2026-01-05 09:00", 1800},
		{"one minute before open", "2026-01-05 09:29", 60},
		{"exactly one hour before open", "2026-01-05 08:30", 3600},
		{"weekend", "2026-01-10 09:00", 3600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.CacheTTLSeconds(et(t, c, tt.at)); got != tt.want {
				t.Errorf("CacheTTLSeconds(%s) = %d, want %d", tt.at, got, tt.want)
			}
		})
	}
}

func TestClock_DSTIsRespected(t *testing.T) {
	c := NewClock()
	// 14:00 UTC is 10:00 EDT in July but 09:00 EST in January.
	july := time.Date(2026, 7, 7, 14, 0, 0, 0, time.UTC)
	if !c.IsMarketOpen(july) {
		t.Errorf("expected market open at %v", july)
	}
	jan := time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC)
	if c.IsMarketOpen(jan) {
		t.Errorf("expected market closed at %v (09:00 EST)", jan)
	}
}

func TestClock_Today(t *testing.T) {
	c := NewClock()
	// 02:00 UTC on the 7th is still the 6th in New York.
	got := c.Today(time.Date(2026, 1, 7, 2, 0, 0, 0, time.UTC))
	want := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Today = %v, want %v", got, want)
	}
}

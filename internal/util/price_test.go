package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "mid of a 2.10 x 2.35 quote rounds up to the cent",
			x:        2.225,
			tick:     0.01,
			expected: 2.23,
		},
		{
			name:     "premium below half a cent rounds down",
			x:        4.1249,
			tick:     0.01,
			expected: 4.12,
		},
		{
			name:     "unrealized loss ties away from zero",
			x:        -37.125,
			tick:     0.01,
			expected: -37.13,
		},
		{
			name:     "implied volatility to three places",
			x:        0.3125,
			tick:     0.001,
			expected: 0.313,
		},
		{
			name:     "strike on a 2.50 grid",
			x:        47.3,
			tick:     2.5,
			expected: 47.5,
		},
		{
			name:     "strike already on the 5 dollar grid",
			x:        185,
			tick:     5,
			expected: 185,
		},
		{
			name:     "halfway strike rounds up to the next 5",
			x:        152.5,
			tick:     5,
			expected: 155,
		},
		{
			name:     "just under halfway stays on the lower strike",
			x:        157.49,
			tick:     5,
			expected: 155,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestFloorToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "lower strike bound below spot",
			x:        151.2,
			tick:     5,
			expected: 150,
		},
		{
			name:     "spot exactly on a strike",
			x:        150,
			tick:     5,
			expected: 150,
		},
		{
			name:     "float noise under a strike drops one strike",
			x:        149.99999999999,
			tick:     5,
			expected: 145,
		},
		{
			name:     "half dollar grid for a low priced name",
			x:        48.7,
			tick:     2.5,
			expected: 47.5,
		},
		{
			name:     "loss floors away from zero",
			x:        -12.344,
			tick:     0.01,
			expected: -12.35,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FloorToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("FloorToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestCeilToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "upper strike bound above spot",
			x:        152.1,
			tick:     5,
			expected: 155,
		},
		{
			name:     "spot exactly on a strike",
			x:        155,
			tick:     5,
			expected: 155,
		},
		{
			name:     "float noise over a strike lifts one strike",
			x:        150.00000000001,
			tick:     5,
			expected: 155,
		},
		{
			name:     "debit on a nickel tick",
			x:        3.201,
			tick:     0.05,
			expected: 3.25,
		},
		{
			name:     "loss ceils toward zero",
			x:        -12.344,
			tick:     0.01,
			expected: -12.34,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CeilToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("CeilToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestTickRounding_DegenerateInputs(t *testing.T) {
	t.Run("zero tick leaves the premium alone", func(t *testing.T) {
		premium := 3.4567
		for name, fn := range map[string]func(float64, float64) float64{
			"RoundToTick": RoundToTick,
			"FloorToTick": FloorToTick,
			"CeilToTick":  CeilToTick,
		} {
			if got := fn(premium, 0); got != premium {
				t.Errorf("%s(%v, 0) = %v, expected %v", name, premium, got, premium)
			}
		}
	})

	t.Run("missing quote stays NaN", func(t *testing.T) {
		if got := RoundToTick(math.NaN(), 0.01); !math.IsNaN(got) {
			t.Errorf("RoundToTick(NaN, 0.01) = %v, expected NaN", got)
		}
		if got := FloorToTick(math.NaN(), 5); !math.IsNaN(got) {
			t.Errorf("FloorToTick(NaN, 5) = %v, expected NaN", got)
		}
		if got := CeilToTick(math.NaN(), 5); !math.IsNaN(got) {
			t.Errorf("CeilToTick(NaN, 5) = %v, expected NaN", got)
		}
	})

	t.Run("infinite ratio passes through", func(t *testing.T) {
		if got := RoundToTick(math.Inf(1), 0.01); !math.IsInf(got, 1) {
			t.Errorf("RoundToTick(+Inf, 0.01) = %v, expected +Inf", got)
		}
		if got := FloorToTick(math.Inf(-1), 5); !math.IsInf(got, -1) {
			t.Errorf("FloorToTick(-Inf, 5) = %v, expected -Inf", got)
		}
	})

	t.Run("negative strike increment is treated as positive", func(t *testing.T) {
		if got := RoundToTick(152.5, -5); math.Abs(got-155) > 1e-10 {
			t.Errorf("RoundToTick(152.5, -5) = %v, expected 155", got)
		}
	})
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name           string
		from, to, want float64
	}{
		{"gap up into earnings", 180, 189, 5},
		{"selloff", 250, 237.5, -5},
		{"flat session", 42.42, 42.42, 0},
		{"no prior close", 0, 10, 0},
	}
	for _, tt := range tests {
		if got := PercentChange(tt.from, tt.to); math.Abs(got-tt.want) > 1e-10 {
			t.Errorf("%s: PercentChange(%v, %v) = %v, expected %v", tt.name, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestClamp_IVRank(t *testing.T) {
	tests := []struct {
		rank, want float64
	}{
		{112.5, 100},
		{-3, 0},
		{57.25, 57.25},
		{0, 0},
		{100, 100},
	}
	for _, tt := range tests {
		if got := Clamp(tt.rank, 0, 100); got != tt.want {
			t.Errorf("Clamp(%v, 0, 100) = %v, expected %v", tt.rank, got, tt.want)
		}
	}
}

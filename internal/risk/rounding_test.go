package risk

import "testing"

func TestRoundShares(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   float64
		want float64
	}{
		{10.129, 10.12},
		{10.001, 10.00},
		{0.009, 0},
		{33.333333, 33.33},
	}
	for _, c := range cases {
		if got := RoundShares(c.in); got != c.want {
			t.Errorf("RoundShares(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestBuyLimitRoundsUp(t *testing.T) {
	t.Parallel()
	if got := BuyLimit(0.51001, 0); got != 0.5101 {
		t.Errorf("BuyLimit(0.51001, 0) = %v, want 0.5101", got)
	}
	if got := BuyLimit(0.5100, 0); got != 0.5100 {
		t.Errorf("BuyLimit(0.5100, 0) = %v, want 0.5100", got)
	}
}

func TestSellLimitRoundsDown(t *testing.T) {
	t.Parallel()
	if got := SellLimit(0.48999, 0); got != 0.4899 {
		t.Errorf("SellLimit(0.48999, 0) = %v, want 0.4899", got)
	}
	if got := SellLimit(0.4900, 0); got != 0.4900 {
		t.Errorf("SellLimit(0.4900, 0) = %v, want 0.4900", got)
	}
}

// An exact decimal product must come out exact: 0.60 * 1.02 in float64 is
// 0.6120000000000001, which a ceiling round would lift to 0.6121.
func TestLimitsAreFloatNoiseFree(t *testing.T) {
	t.Parallel()
	if got := BuyLimit(0.60, 0.02); got != 0.612 {
		t.Errorf("BuyLimit(0.60, 0.02) = %v, want 0.612", got)
	}
	if got := SellLimit(0.60, 0.02); got != 0.588 {
		t.Errorf("SellLimit(0.60, 0.02) = %v, want 0.588", got)
	}
	if got := BuyLimit(0.50, 0.02); got != 0.51 {
		t.Errorf("BuyLimit(0.50, 0.02) = %v, want 0.51", got)
	}
	if got := SellLimit(0.50, 0.02); got != 0.49 {
		t.Errorf("SellLimit(0.50, 0.02) = %v, want 0.49", got)
	}
}

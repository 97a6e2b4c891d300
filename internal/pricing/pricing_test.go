package pricing

import "testing"

func TestPriceFor(t *testing.T) {
	want := map[int]string{
		1:  "0.05",
		7:  "0.15",
		30: "0.25",
	}

	for days, price := range want {
		got, err := PriceFor(days)
		if err != nil {
			t.Fatalf("PriceFor(%d) failed: %v", days, err)
		}
		if got <= 0 {
			t.Errorf("PriceFor(%d) = %d, want positive", days, got)
		}
		if got.String() != price {
			t.Errorf("PriceFor(%d) = %q, want %q", days, got.String(), price)
		}

		// Same duration always yields the same price
		again, _ := PriceFor(days)
		if again != got {
			t.Errorf("PriceFor(%d) not stable: %d vs %d", days, got, again)
		}
	}
}

func TestPriceFor_UnknownDuration(t *testing.T) {
	for _, days := range []int{0, -1, 2, 14, 365} {
		if _, err := PriceFor(days); err != ErrUnknownDuration {
			t.Errorf("PriceFor(%d): expected ErrUnknownDuration, got %v", days, err)
		}
		if IsValidDuration(days) {
			t.Errorf("IsValidDuration(%d) = true, want false", days)
		}
	}
}

func TestParseUSD(t *testing.T) {
	cases := []struct {
		in      string
		want    USD
		wantErr bool
	}{
		{"0.05", 50_000, false},
		{"$0.05", 50_000, false},
		{"0.15", 150_000, false},
		{"1", 1_000_000, false},
		{"1.5", 1_500_000, false},
		{".25", 250_000, false},
		{"0.000001", 1, false},
		{"", 0, true},
		{"$", 0, true},
		{"abc", 0, true},
		{"1.2345678", 0, true},
		{"-0.05", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseUSD(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseUSD(%q): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUSD(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseUSD(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestUSD_String_RoundTrip(t *testing.T) {
	for _, days := range Durations() {
		price, _ := PriceFor(days)
		parsed, err := ParseUSD(price.String())
		if err != nil {
			t.Fatalf("round trip of %q failed: %v", price.String(), err)
		}
		if parsed != price {
			t.Errorf("round trip of %q: got %d, want %d", price.String(), parsed, price)
		}
	}
}

func TestUSD_AtomicUnits(t *testing.T) {
	price, _ := PriceFor(7)
	if price.AtomicUnits() != 150_000 {
		t.Errorf("AtomicUnits = %d, want 150000", price.AtomicUnits())
	}
}

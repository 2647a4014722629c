package utils

import (
	"testing"
	"time"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.005, 1.01},
		{2.675, 2.68},
		{-1.005, -1.01},
		{10, 10},
		{0.004, 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSumRound2(t *testing.T) {
	if got := SumRound2(0.1, 0.2); got != 0.3 {
		t.Errorf("SumRound2(0.1, 0.2) = %v, want 0.3", got)
	}
	if got := SumRound2(); got != 0 {
		t.Errorf("SumRound2() = %v, want 0", got)
	}
}

type createDTO struct {
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
	TaxRate float64 `json:"tax_rate" normalize:"-"`
}

type patchDTO struct {
	Name      *string  `json:"name"`
	SellPrice *float64 `json:"sell_price"`
	LowStock  *int     `json:"low_stock"`
	Note      *string  `json:"-"`
	Untagged  *string
}

func TestNormalizeDTO(t *testing.T) {
	in := createDTO{Name: "  Galaxy A15 ", Price: 12999.999, TaxRate: 12.345}
	NormalizeDTO(&in)
	if in.Name != "Galaxy A15" || in.Price != 13000 || in.TaxRate != 12.345 {
		t.Errorf("NormalizeDTO() = %+v", in)
	}

	NormalizeDTO(in) // not a pointer: no-op, no panic
	var nilDTO *createDTO
	NormalizeDTO(nilDTO)
}

func TestNormalizePtrDTO(t *testing.T) {
	name := " Redmi "
	price := 99.999
	in := patchDTO{Name: &name, SellPrice: &price}
	NormalizePtrDTO(&in)
	if *in.Name != "Redmi" || *in.SellPrice != 100 {
		t.Errorf("NormalizePtrDTO() = %q %v", *in.Name, *in.SellPrice)
	}
	if in.LowStock != nil {
		t.Errorf("nil field was touched")
	}
}

func TestUpdatesFromPtrDTO(t *testing.T) {
	name := "Nokia"
	low := 3
	note := "ignored"
	untagged := "ignored"
	in := patchDTO{Name: &name, LowStock: &low, Note: &note, Untagged: &untagged}

	got := UpdatesFromPtrDTO(&in, map[string]string{"low_stock": "low_stock_threshold"})
	if len(got) != 2 {
		t.Fatalf("updates = %v, want 2 keys", got)
	}
	if got["name"] != "Nokia" || got["low_stock_threshold"] != 3 {
		t.Errorf("updates = %v", got)
	}
	if len(UpdatesFromPtrDTO(in, nil)) != 0 {
		t.Errorf("non-pointer input should give no updates")
	}
}

func TestParseIntDefault(t *testing.T) {
	tests := []struct {
		in   string
		def  int
		want int
	}{
		{"25", 10, 25},
		{" 7 ", 10, 7},
		{"", 10, 10},
		{"-3", 10, 10},
		{"abc", 10, 10},
	}
	for _, tt := range tests {
		if got := ParseIntDefault(tt.in, tt.def); got != tt.want {
			t.Errorf("ParseIntDefault(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDateRange(t *testing.T) {
	from, to := ParseDateRange("2024-03-01", "2024-03-31")
	if !from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", from)
	}
	if to.Day() != 31 || to.Hour() != 23 {
		t.Errorf("to = %v, want end of 31 March", to)
	}

	from, to = ParseDateRange("garbage", "")
	if !from.IsZero() || !to.IsZero() {
		t.Errorf("malformed bounds should be zero, got %v %v", from, to)
	}
}

package coerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"5.1", 5.1, true},
		{"5,1", 5.1, true},
		{" 28,50 ", 28.5, true},
		{"1.234,5", 1234.5, true},
		{"1,234.5", 1234.5, true},
		{"1 234,5", 1234.5, true},
		{"(3)", -3, true},
		{"-2.5", -2.5, true},
		{"62%", 62, true},
		{"$10", 10, true},
		{"1e-3", 0.001, true},
		{"", 0, false},
		{"ND", 0, false},
		{">14", 0, false},
		{"0,49-28,50", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Decimal(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"±3.2", 3.2, true},
		{"± 4,5", 4.5, true},
		{"+/-1.5", 1.5, true},
		{"0,49-28,50", 28.5, true},
		{"12.6–3.1", 12.6, true},
		{"-1-2", 2, true},
		{"5,1", 5.1, true},
		{"<7", 0, false},
		{"2-", 0, false},
		{"Median (IQR)", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Number(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
		})
	}
}

func TestRange(t *testing.T) {
	low, high, ok := Range("0,49-28,50")
	assert.True(t, ok)
	assert.InDelta(t, 0.49, low, 1e-12)
	assert.InDelta(t, 28.5, high, 1e-12)

	_, _, ok = Range("-5")
	assert.False(t, ok)
}

func TestInt(t *testing.T) {
	v, ok := Int("2013")
	assert.True(t, ok)
	assert.Equal(t, 2013, v)

	_, ok = Int("20X3")
	assert.False(t, ok)

	_, ok = Int("12.5")
	assert.False(t, ok)
}

func TestBool(t *testing.T) {
	for _, in := range []string{"Yes", " yes ", "TRUE", "y", "1"} {
		v, ok := Bool(in)
		assert.True(t, ok, in)
		assert.True(t, v, in)
	}
	for _, in := range []string{"No", "false", "n", "0"} {
		v, ok := Bool(in)
		assert.True(t, ok, in)
		assert.False(t, v, in)
	}
	_, ok := Bool("maybe")
	assert.False(t, ok)
}

func TestISODate(t *testing.T) {
	tests := map[string]string{
		"2024-01-01":          "2024-01-01T00:00:00",
		"2024-02-01 13:30:00": "2024-02-01T13:30:00",
		"02/01/2024":          "2024-02-01T00:00:00",
		"1/15/24 00:00":       "2024-01-15T00:00:00",
	}
	for in, want := range tests {
		got, ok := ISODate(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ISODate("Mortality")
	assert.False(t, ok)
}

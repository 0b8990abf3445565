package record

import (
	"math"
	"testing"
	"time"
)

func TestFloat_NaNAndInfCollapseToNull(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if !Float(v).IsNull() {
			t.Errorf("Expected Float(%f) to be null", v)
		}
	}
	if Float(0).IsNull() {
		t.Error("Expected Float(0) to be a real zero, not null")
	}
}

func TestString_EmptyIsNull(t *testing.T) {
	if !String("").IsNull() {
		t.Error("Expected empty string to be null")
	}
	if String("clear sky").IsNull() {
		t.Error("Expected non-empty string to be non-null")
	}
}

func TestTime_ZeroIsNull(t *testing.T) {
	if !Time(time.Time{}).IsNull() {
		t.Error("Expected zero time to be null")
	}
}

func TestValue_FloatFromInt(t *testing.T) {
	f, ok := Int(62).Float()
	if !ok || f != 62 {
		t.Errorf("Expected Int(62).Float() = 62, got %f (ok=%v)", f, ok)
	}
}

func TestValue_IntRoundsFromFloat(t *testing.T) {
	i, ok := Float(61.5).Int()
	if !ok || i != 62 {
		t.Errorf("Expected Float(61.5).Int() = 62, got %d (ok=%v)", i, ok)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{5.314, 5.31},
		{5.315, 5.32},
		{-2.105, -2.1},
		{20.75, 20.75},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestCoerce_NullStaysNull(t *testing.T) {
	for _, k := range []Kind{KindFloat, KindInt, KindString, KindTime} {
		v, err := Null().Coerce(k)
		if err != nil {
			t.Fatalf("Coerce null to %s: unexpected error %v", k, err)
		}
		if !v.IsNull() {
			t.Errorf("Expected null coerced to %s to stay null", k)
		}
	}
}

func TestCoerce_FloatRoundsToTwoDecimals(t *testing.T) {
	v, err := Float(21.123456).Coerce(KindFloat)
	if err != nil {
		t.Fatalf("Unexpected coerce error: %v", err)
	}
	f, _ := v.Float()
	if f != 21.12 {
		t.Errorf("Expected 21.12, got %f", f)
	}
}

func TestCoerce_IncompatibleKindFails(t *testing.T) {
	if _, err := String("cloudy").Coerce(KindFloat); err == nil {
		t.Error("Expected error coercing string to float")
	}
	if _, err := Float(1.5).Coerce(KindTime); err == nil {
		t.Error("Expected error coercing float to time")
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 15, 14, 5, 0, 0, time.Local)
	tests := []struct {
		kind Kind
		v    Value
	}{
		{KindFloat, Float(5.31)},
		{KindInt, Int(62)},
		{KindString, String("light snow")},
		{KindTime, Time(ts)},
		{KindFloat, Null()},
	}
	for _, tt := range tests {
		cell := tt.v.Encode()
		got, err := Decode(tt.kind, cell)
		if err != nil {
			t.Fatalf("Decode(%s, %q): %v", tt.kind, cell, err)
		}
		if got.IsNull() != tt.v.IsNull() {
			t.Errorf("Round-trip null mismatch for %q", cell)
		}
		if cell != got.Encode() {
			t.Errorf("Round-trip cell mismatch: %q vs %q", cell, got.Encode())
		}
	}
}

func TestDecode_EmptyCellIsNull(t *testing.T) {
	for _, k := range []Kind{KindFloat, KindInt, KindString, KindTime} {
		v, err := Decode(k, "")
		if err != nil {
			t.Fatalf("Decode(%s, \"\"): %v", k, err)
		}
		if !v.IsNull() {
			t.Errorf("Expected empty cell to decode as null for %s", k)
		}
	}
}

func TestDecode_BadCellFails(t *testing.T) {
	if _, err := Decode(KindFloat, "abc"); err == nil {
		t.Error("Expected error for bad float cell")
	}
	if _, err := Decode(KindTime, "not-a-time"); err == nil {
		t.Error("Expected error for bad time cell")
	}
}

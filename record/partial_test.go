package record

import (
	"testing"
	"time"
)

func TestAdopt_FirstNonNullWins(t *testing.T) {
	merged := Partial{}
	merged.Adopt(Partial{"ext_temp": Float(5.3)})
	merged.Adopt(Partial{"ext_temp": Float(4.1), "open_temp": Float(-2.1)})

	f, _ := merged["ext_temp"].Float()
	if f != 5.3 {
		t.Errorf("Expected higher-precedence ext_temp 5.3 to survive, got %f", f)
	}
	f, _ = merged["open_temp"].Float()
	if f != -2.1 {
		t.Errorf("Expected open_temp -2.1 from second partial, got %f", f)
	}
}

func TestAdopt_NullNeverMasksRealValue(t *testing.T) {
	merged := Partial{}
	merged.Adopt(Partial{"kwh_salon": Null()})
	merged.Adopt(Partial{"kwh_salon": Float(3.21)})

	f, ok := merged["kwh_salon"].Float()
	if !ok || f != 3.21 {
		t.Errorf("Expected null placeholder to be replaced by real value, got %v (ok=%v)", f, ok)
	}
}

func TestAdopt_RealValueSurvivesLaterNull(t *testing.T) {
	merged := Partial{}
	merged.Adopt(Partial{"ext_humidity": Int(62)})
	merged.Adopt(Partial{"ext_humidity": Null()})

	i, ok := merged["ext_humidity"].Int()
	if !ok || i != 62 {
		t.Errorf("Expected real value to survive later null, got %d (ok=%v)", i, ok)
	}
}

func TestNonNull(t *testing.T) {
	p := Partial{"a": Float(1), "b": Null(), "c": String("x")}
	if n := p.NonNull(); n != 2 {
		t.Errorf("Expected 2 non-null fields, got %d", n)
	}
}

func TestRow_SetNullClears(t *testing.T) {
	row := NewRow(time.Now())
	row.Set("ext_temp", Float(5.3))
	row.Set("ext_temp", Null())
	if !row.Get("ext_temp").IsNull() {
		t.Error("Expected null set to clear the cell")
	}
}

func TestDayHourOf(t *testing.T) {
	ts := time.Date(2026, 1, 15, 14, 5, 0, 0, time.Local)
	key := DayHourOf(ts)
	if key.Day != "2026-01-15" || key.Hour != 14 {
		t.Errorf("Unexpected key %+v", key)
	}
}

func TestHourlyEnergyMap_Override(t *testing.T) {
	m := HourlyEnergyMap{
		DayHour{"2026-01-15", 13}: 1.2,
		DayHour{"2026-01-15", 14}: 1.4,
	}
	m.Override(HourlyEnergyMap{
		DayHour{"2026-01-15", 14}: 1.9,
		DayHour{"2026-01-15", 15}: 0.7,
	})

	if m[DayHour{"2026-01-15", 13}] != 1.2 {
		t.Error("Expected untouched hour to keep its value")
	}
	if m[DayHour{"2026-01-15", 14}] != 1.9 {
		t.Error("Expected fresher reading to win for overlapping hour")
	}
	if m[DayHour{"2026-01-15", 15}] != 0.7 {
		t.Error("Expected new hour to be added")
	}
}

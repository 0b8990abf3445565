package record

import (
	"fmt"
	"strings"
)

// Column names that other packages address directly.
const (
	ColTimestamp   = "timestamp"
	ColExtTemp     = "ext_temp"
	ColExtHumidity = "ext_humidity"
	ColIntTemp     = "int_temp"
	ColKwhNeviweb  = "kwh_neviweb"
	ColKwhHydro    = "kwh_hydro_quebec"
)

// Column is one entry of the fixed table schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the fixed, ordered column set of the table. It is built once at
// startup from configuration and never changes per row.
type Schema struct {
	cols  []Column
	index map[string]int
}

// NewSchema builds a schema from an ordered column list. The timestamp
// column must come first; duplicate names are rejected.
func NewSchema(cols []Column) (*Schema, error) {
	if len(cols) == 0 || cols[0].Name != ColTimestamp || cols[0].Kind != KindTime {
		return nil, fmt.Errorf("schema must start with the %s time column", ColTimestamp)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}
	return &Schema{cols: cols, index: index}, nil
}

// Build assembles the full column set for the configured rooms: timestamp,
// RF-sensor aggregates, per-room temperature and energy, device-cloud and
// utility totals, then the weather snapshot.
func Build(rooms []string) (*Schema, error) {
	cols := []Column{
		{ColTimestamp, KindTime},
		{ColExtTemp, KindFloat},
		{ColExtHumidity, KindInt},
		{ColIntTemp, KindFloat},
	}
	for _, room := range rooms {
		cols = append(cols, Column{"temp_" + RoomKey(room), KindFloat})
	}
	for _, room := range rooms {
		cols = append(cols, Column{"kwh_" + RoomKey(room), KindFloat})
	}
	cols = append(cols,
		Column{ColKwhNeviweb, KindFloat},
		Column{ColKwhHydro, KindFloat},
		Column{"open_temp", KindFloat},
		Column{"open_feels_like", KindFloat},
		Column{"open_humidity", KindInt},
		Column{"open_pressure", KindInt},
		Column{"open_clouds", KindInt},
		Column{"open_visibility", KindInt},
		Column{"open_wind_speed", KindFloat},
		Column{"open_wind_gust", KindFloat},
		Column{"open_wind_deg", KindInt},
		Column{"open_rain", KindFloat},
		Column{"open_snow", KindFloat},
		Column{"open_weather", KindString},
		Column{"open_icon", KindString},
		Column{"open_sunrise", KindTime},
		Column{"open_sunset", KindTime},
		Column{"open_uvi", KindFloat},
	)
	return NewSchema(cols)
}

// RoomKey normalizes a configured room name into a column suffix.
func RoomKey(room string) string {
	key := strings.ToLower(strings.TrimSpace(room))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// Columns returns the ordered column list.
func (s *Schema) Columns() []Column { return s.cols }

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.cols) }

// Lookup returns the column definition for a name.
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.cols[i], true
}

// Has reports whether the schema contains the named column.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Header returns the column names in order, for the table file header row.
func (s *Schema) Header() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

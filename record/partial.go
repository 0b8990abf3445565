package record

import (
	"sort"
	"time"
)

// Partial is one cycle's contribution from a single source, or the union of
// several. Keys are namespaced field names. A field a source knows about but
// could not read this cycle is present with a null value, never omitted, so
// the downstream column set stays stable.
type Partial map[string]Value

// Adopt copies fields from a lower-precedence partial. A key already holding
// a non-null value is never overwritten, so merging in precedence order makes
// the result independent of source completion order. A null placeholder does
// not mask a real value from a later source.
func (p Partial) Adopt(other Partial) {
	for name, v := range other {
		if existing, ok := p[name]; ok && !existing.IsNull() {
			continue
		}
		p[name] = v
	}
}

// NonNull counts the fields carrying an actual value.
func (p Partial) NonNull() int {
	n := 0
	for _, v := range p {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

// Names returns the field names in sorted order, for stable logging.
func (p Partial) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Row is one flat table record keyed by the fixed schema. Cells not
// explicitly set stay null.
type Row struct {
	Timestamp time.Time
	cells     map[string]Value
}

// NewRow creates an empty row for the given cycle timestamp.
func NewRow(ts time.Time) *Row {
	return &Row{Timestamp: ts, cells: make(map[string]Value)}
}

// Set stores a cell. Setting a null value clears the cell back to default.
func (r *Row) Set(name string, v Value) {
	if v.IsNull() {
		delete(r.cells, name)
		return
	}
	r.cells[name] = v
}

// Get returns the cell value; absent cells read as null.
func (r *Row) Get(name string) Value {
	return r.cells[name]
}

// DayHour is the composite backfill key: calendar day plus hour of day.
type DayHour struct {
	Day  string // formatted 2006-01-02, local time
	Hour int
}

// DayHourOf derives the backfill key from a row timestamp.
func DayHourOf(t time.Time) DayHour {
	return DayHour{Day: t.Format("2006-01-02"), Hour: t.Hour()}
}

// HourlyEnergyMap holds utility kWh readings over a sliding trailing window.
// Missing hours are simply absent; a zero reading means "meter reported
// nothing yet" and must never overwrite a real table value.
type HourlyEnergyMap map[DayHour]float64

// Override applies fresher readings on top of the map. Used to let the
// live "today so far" breakdown win over the downloaded CSV for overlapping
// hours.
func (m HourlyEnergyMap) Override(fresh HourlyEnergyMap) {
	for k, v := range fresh {
		m[k] = v
	}
}

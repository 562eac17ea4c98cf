package flows

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Record is one daily net flow for one instrument, in USD.
type Record struct {
	Date       time.Time `json:"date"`
	Instrument string    `json:"etf"`
	Flow       float64   `json:"flow"`
}

// Dataset is the canonical long-form output of one successful pipeline run.
// It is immutable once returned; a refresh builds a new Dataset rather than
// mutating the old one. CoercedCells and DroppedRows report parse quality:
// cells that failed numeric normalization (recovered as zero) and rows whose
// date could not be parsed (excluded).
type Dataset struct {
	Records      []Record  `json:"items"`
	Source       string    `json:"source"`
	FetchedAt    time.Time `json:"fetched_at"`
	CoercedCells int       `json:"coerced_cells"`
	DroppedRows  int       `json:"dropped_rows"`
}

// Empty reports whether the dataset holds no records.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Records) == 0
}

// Sort orders records by (instrument, date) ascending.
func (d *Dataset) Sort() {
	sort.SliceStable(d.Records, func(i, j int) bool {
		a, b := d.Records[i], d.Records[j]
		if a.Instrument != b.Instrument {
			return a.Instrument < b.Instrument
		}
		return a.Date.Before(b.Date)
	})
}

// Instruments returns the sorted set of distinct instrument names.
func (d *Dataset) Instruments() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d.Records {
		if _, ok := seen[r.Instrument]; ok {
			continue
		}
		seen[r.Instrument] = struct{}{}
		out = append(out, r.Instrument)
	}
	sort.Strings(out)
	return out
}

// Filter selects records from a dataset. Zero values mean "no constraint".
type Filter struct {
	Instruments []string
	From        time.Time
	To          time.Time
	Limit       int
}

// Select returns a copy of the records matching the filter, preserving the
// dataset's canonical order. The dataset itself is never modified.
func (d *Dataset) Select(f Filter) []Record {
	want := make(map[string]struct{}, len(f.Instruments))
	for _, name := range f.Instruments {
		name = strings.TrimSpace(name)
		if name != "" {
			want[strings.ToUpper(name)] = struct{}{}
		}
	}

	out := make([]Record, 0, len(d.Records))
	for _, r := range d.Records {
		if len(want) > 0 {
			if _, ok := want[strings.ToUpper(r.Instrument)]; !ok {
				continue
			}
		}
		if !f.From.IsZero() && r.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && r.Date.After(f.To) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)

// CleanInstrument normalizes a column header into an instrument name:
// parenthetical annotations stripped, whitespace collapsed and trimmed.
// "IBIT (BlackRock)" becomes "IBIT".
func CleanInstrument(name string) string {
	name = parenthetical.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// dateFormats is tried in order by ParseDate. The upstream table uses
// "11 Jan 2024"; the remaining layouts cover proxy renderings and CSV
// re-imports.
var dateFormats = []string{
	"2 Jan 2006",
	"02 Jan 2006",
	"2006-01-02",
	"Jan 2, 2006",
	"Jan 2 2006",
	"02/01/2006",
	"2/1/2006",
}

// ParseDate parses a table date cell into a calendar date (midnight UTC).
// Returns the zero time when no layout matches. Trailing footnote markers
// ("*") and non-breaking spaces are tolerated.
func ParseDate(s string) time.Time {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimRight(strings.TrimSpace(s), "*")
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

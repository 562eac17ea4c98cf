package flows

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

const csvDateLayout = "2006-01-02"

// csvHeader matches the long-form column contract consumed by the
// presentation layer's download button.
var csvHeader = []string{"date", "etf", "flow"}

// WriteCSV serializes records to delimited text, header row included, one row
// per record in dataset order. Flows are written with minimal round-trippable
// precision.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Date.Format(csvDateLayout),
			r.Instrument,
			strconv.FormatFloat(r.Flow, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses records previously produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("csv row %d: got %d columns, want %d", i+2, len(row), len(csvHeader))
		}
		date, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: parsing date %q: %w", i+2, row[0], err)
		}
		flow, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: parsing flow %q: %w", i+2, row[2], err)
		}
		records = append(records, Record{
			Date:       date.UTC(),
			Instrument: row[1],
			Flow:       flow,
		})
	}
	return records, nil
}

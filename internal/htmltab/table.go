// Package htmltab extracts candidate tables from scraped documents and
// locates the one carrying the per-instrument flows matrix. Two document
// shapes are supported: real HTML (direct scrape) and markdown pipe tables
// (proxy-relay renderings of the same page).
package htmltab

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoFlowsTable is returned when no candidate table qualifies as the flows
// matrix. Callers treat it as a per-variant failure and advance to the next
// source variant.
var ErrNoFlowsTable = errors.New("no flows table found in document")

// Table is an intermediate 2-D grid of cell strings with a header row.
// Several may be extracted from one document; none are persisted.
type Table struct {
	Header []string
	Rows   [][]string
}

// stoplist marks derived/meta columns that are not per-instrument flow
// series. Matching is contains on the lower-cased header.
var stoplist = []string{"total", "totals", "aum", "issuer", "inception", "fund", "cumulative"}

// minDataColumns is the minimum number of non-date columns a candidate must
// have; it rejects summary and legend tables that also carry a Date header.
const minDataColumns = 3

// ExtractHTML parses an HTML document and returns every <table> as a
// candidate, in source order. Header cells come from the first row (th or
// td); cell text is whitespace-collapsed.
func ExtractHTML(r io.Reader) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}

		var t Table
		rows.Each(func(i int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, collapse(cell.Text()))
			})
			if len(cells) == 0 {
				return
			}
			if t.Header == nil {
				t.Header = cells
				return
			}
			t.Rows = append(t.Rows, padTo(cells, len(t.Header)))
		})
		if t.Header != nil {
			tables = append(tables, t)
		}
	})
	return tables, nil
}

// ExtractMarkdown scans a text document for markdown pipe-table rows and
// returns them as a single candidate. Proxy relays render the upstream page
// as markdown; some wrap it in HTML, in which case tags are stripped first
// and the scan retried.
func ExtractMarkdown(text string) []Table {
	if t, ok := scanPipeRows(text); ok {
		return []Table{t}
	}
	if looksLikeHTML(text) {
		if t, ok := scanPipeRows(StripTags(text)); ok {
			return []Table{t}
		}
	}
	return nil
}

func scanPipeRows(text string) (Table, bool) {
	var t Table
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		cells := splitPipeRow(line)
		if len(cells) == 0 || isSeparatorRow(cells) {
			continue
		}
		if t.Header == nil {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, padTo(cells, len(t.Header)))
	}
	// A header with no data rows is either a degenerate table or a false
	// positive from pipes in surrounding prose; let the caller fall through.
	return t, t.Header != nil && len(t.Rows) > 0
}

// splitPipeRow splits "| a | b |" into trimmed cells, dropping the empty
// leading/trailing fields produced by boundary pipes.
func splitPipeRow(line string) []string {
	parts := strings.Split(line, "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = collapse(p)
	}
	return cells
}

// isSeparatorRow reports whether every cell is a markdown alignment rule
// like "---" or ":--:".
func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" {
			continue
		}
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") || strings.Contains(lower, "<div")
}

// Locate selects the flows matrix from candidates: the first table, in
// source order, whose header contains a column named "date"
// (case-insensitive) plus more than minDataColumns other columns. Stoplisted
// meta columns are dropped from the returned table.
func Locate(tables []Table) (Table, error) {
	for _, t := range tables {
		if DateColumn(t.Header) < 0 {
			continue
		}
		if len(t.Header)-1 <= minDataColumns {
			continue
		}
		return dropMetaColumns(t), nil
	}
	return Table{}, ErrNoFlowsTable
}

// DateColumn returns the index of the date column in a header, or -1.
func DateColumn(header []string) int {
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "date") {
			return i
		}
	}
	return -1
}

func isMetaColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, stop := range stoplist {
		if strings.Contains(lower, stop) {
			return true
		}
	}
	return false
}

// dropMetaColumns removes stoplisted columns from a table, keeping the date
// column regardless of its name position.
func dropMetaColumns(t Table) Table {
	dateIdx := DateColumn(t.Header)
	keep := make([]int, 0, len(t.Header))
	for i, name := range t.Header {
		if i != dateIdx && isMetaColumn(name) {
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) == len(t.Header) {
		return t
	}

	out := Table{Header: make([]string, len(keep))}
	for j, i := range keep {
		out.Header[j] = t.Header[i]
	}
	out.Rows = make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells := make([]string, len(keep))
		for j, i := range keep {
			if i < len(row) {
				cells[j] = row[i]
			}
		}
		out.Rows[r] = cells
	}
	return out
}

func padTo(cells []string, n int) []string {
	if len(cells) == n {
		return cells
	}
	if len(cells) > n {
		return cells[:n]
	}
	out := make([]string, n)
	copy(out, cells)
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

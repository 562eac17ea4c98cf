// Package parser runs the scrape-and-normalize pipeline: fetch a ranked list
// of source variants, extract and locate the flows table, coerce dates,
// normalize cells, and reshape the wide per-instrument matrix into canonical
// long form.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowsider/etfflow/internal/flows"
	"github.com/flowsider/etfflow/internal/htmltab"
	"github.com/flowsider/etfflow/internal/httpx"
	"github.com/flowsider/etfflow/internal/observability"
)

// Format tells the parser how to extract tables from a variant's response.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Variant is one way of reaching the logical upstream resource: a direct URL
// or a proxy relay, with the response shape it yields and the scale its bare
// numerals carry.
type Variant struct {
	Name   string
	URL    string
	Format Format
	Scale  flows.Scale
}

// DefaultVariants is the precedence-ordered fallback chain for the farside
// Bitcoin ETF flows page. Direct scrapes come first; the r.jina.ai relays
// work around anti-bot blocking at the cost of a markdown rendering. The
// page header declares flows in $m, so bare numerals are millions on every
// variant.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "farside-direct", URL: "https://farside.co.uk/bitcoin-etf-flows", Format: FormatHTML, Scale: flows.ScaleMillions},
		{Name: "farside-www", URL: "https://www.farside.co.uk/bitcoin-etf-flows", Format: FormatHTML, Scale: flows.ScaleMillions},
		{Name: "jina-relay", URL: "https://r.jina.ai/https://farside.co.uk/bitcoin-etf-flows", Format: FormatMarkdown, Scale: flows.ScaleMillions},
		{Name: "jina-relay-http", URL: "https://r.jina.ai/http://farside.co.uk/bitcoin-etf-flows", Format: FormatMarkdown, Scale: flows.ScaleMillions},
	}
}

// ExhaustedError is the one fatal error of the pipeline: every variant
// failed. It carries the last variant's error for diagnosis.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d source variants exhausted: last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Parser orchestrates fetch, locate, and reshape over the variant chain.
type Parser struct {
	fetcher  *httpx.Fetcher
	variants []Variant
	logger   *slog.Logger
	now      func() time.Time
}

func New(fetcher *httpx.Fetcher, variants []Variant, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		fetcher:  fetcher,
		variants: variants,
		logger:   logger,
		now:      time.Now,
	}
}

// Parse tries each variant in order, combining fetch and parse in one retry
// loop: a variant that fetches fine but yields no usable table still falls
// through to the next. Returns the first dataset built, with provenance set
// to the variant that produced it, or ExhaustedError when every variant
// fails.
func (p *Parser) Parse(ctx context.Context) (*flows.Dataset, error) {
	var last error
	for _, v := range p.variants {
		observability.IncFetchAttempt(v.Name)

		ds, err := p.parseVariant(ctx, v)
		if err != nil {
			observability.IncVariantFailure(err)
			p.logger.Warn("source variant failed", "variant", v.Name, "error", err)
			last = err
			continue
		}

		observability.IncDatasetBuilt()
		observability.AddCellsCoerced(ds.CoercedCells)
		observability.AddRowsDropped(ds.DroppedRows)
		p.logger.Info("flows parsed",
			"variant", v.Name,
			"records", len(ds.Records),
			"coerced_cells", ds.CoercedCells,
			"dropped_rows", ds.DroppedRows)
		return ds, nil
	}
	return nil, &ExhaustedError{Attempts: len(p.variants), Last: last}
}

func (p *Parser) parseVariant(ctx context.Context, v Variant) (*flows.Dataset, error) {
	body, _, err := p.fetcher.FetchBytes(ctx, v.URL)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", v.Name, err)
	}

	var tables []htmltab.Table
	switch v.Format {
	case FormatMarkdown:
		tables = htmltab.ExtractMarkdown(string(body))
	default:
		tables, err = htmltab.ExtractHTML(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("variant %s: parsing html: %w", v.Name, err)
		}
	}

	table, err := htmltab.Locate(tables)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", v.Name, err)
	}

	ds := p.reshape(table, v)
	if ds.Empty() {
		return nil, fmt.Errorf("variant %s: located table produced no records: %w", v.Name, htmltab.ErrNoFlowsTable)
	}
	return ds, nil
}

// reshape melts the wide table (one column per instrument) into long form:
// every (row, non-date-column) cell becomes exactly one record. Rows with an
// unparseable date are excluded and counted; malformed cells become zero and
// are counted.
func (p *Parser) reshape(table htmltab.Table, v Variant) *flows.Dataset {
	dateIdx := htmltab.DateColumn(table.Header)

	instruments := make([]string, len(table.Header))
	for i, name := range table.Header {
		if i == dateIdx {
			continue
		}
		instruments[i] = flows.CleanInstrument(name)
	}

	ds := &flows.Dataset{
		Source:    v.Name,
		FetchedAt: p.now().UTC(),
	}
	for _, row := range table.Rows {
		if dateIdx >= len(row) {
			ds.DroppedRows++
			continue
		}
		date := flows.ParseDate(row[dateIdx])
		if date.IsZero() {
			ds.DroppedRows++
			continue
		}
		for i, cell := range row {
			if i == dateIdx || instruments[i] == "" {
				continue
			}
			value, ok := flows.Normalize(cell, v.Scale)
			if !ok {
				ds.CoercedCells++
			}
			ds.Records = append(ds.Records, flows.Record{
				Date:       date,
				Instrument: instruments[i],
				Flow:       value,
			})
		}
	}

	ds.Sort()
	return ds
}

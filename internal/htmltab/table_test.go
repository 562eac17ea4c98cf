package htmltab

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowsPage = `<html><body>
<table>
  <tr><th>Legend</th><th>Meaning</th></tr>
  <tr><td>*</td><td>provisional</td></tr>
</table>
<table>
  <tr>
    <th>Date</th><th>IBIT</th><th>FBTC</th><th>BITB</th><th>ARKB</th><th>Total</th>
  </tr>
  <tr>
    <td>11 Jan 2024</td><td>111.7</td><td>227.0</td><td>237.9</td><td>65.3</td><td>641.9</td>
  </tr>
  <tr>
    <td>12 Jan 2024</td><td>(25.5)</td><td>—</td><td>12.3</td><td>7.6</td><td>-5.6</td>
  </tr>
</table>
</body></html>`

func TestExtractHTML(t *testing.T) {
	tables, err := ExtractHTML(strings.NewReader(flowsPage))
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, []string{"Legend", "Meaning"}, tables[0].Header)

	flowsTable := tables[1]
	assert.Equal(t, []string{"Date", "IBIT", "FBTC", "BITB", "ARKB", "Total"}, flowsTable.Header)
	require.Len(t, flowsTable.Rows, 2)
	assert.Equal(t, []string{"11 Jan 2024", "111.7", "227.0", "237.9", "65.3", "641.9"}, flowsTable.Rows[0])
}

func TestExtractHTMLRaggedRows(t *testing.T) {
	page := `<table>
	  <tr><th>Date</th><th>A</th><th>B</th></tr>
	  <tr><td>11 Jan 2024</td><td>1</td></tr>
	  <tr><td>12 Jan 2024</td><td>1</td><td>2</td><td>3</td></tr>
	</table>`

	tables, err := ExtractHTML(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, tables, 1)

	for _, row := range tables[0].Rows {
		assert.Len(t, row, 3)
	}
}

const markdownPage = `Title: Bitcoin ETF Flow

Some prose before the table.

| Date | IBIT | FBTC | BITB | ARKB |
| --- | --- | --- | --- | --- |
| 11 Jan 2024 | 111.7 | 227.0 | 237.9 | 65.3 |
| 12 Jan 2024 | (25.5) | — | 12.3 | 7.6 |

Some prose after.`

func TestExtractMarkdown(t *testing.T) {
	tables := ExtractMarkdown(markdownPage)
	require.Len(t, tables, 1)

	table := tables[0]
	assert.Equal(t, []string{"Date", "IBIT", "FBTC", "BITB", "ARKB"}, table.Header)
	require.Len(t, table.Rows, 2, "separator row must be skipped")
	assert.Equal(t, []string{"11 Jan 2024", "111.7", "227.0", "237.9", "65.3"}, table.Rows[0])
}

func TestExtractMarkdownFromHTMLWrapper(t *testing.T) {
	wrapped := "<html><body><div>| Date | IBIT | FBTC | BITB | ARKB |</div>" +
		"<div>| --- | --- | --- | --- | --- |</div>" +
		"<div>| 11 Jan 2024 | 111.7 | 227.0 | 237.9 | 65.3 |</div></body></html>"

	tables := ExtractMarkdown(wrapped)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Date", "IBIT", "FBTC", "BITB", "ARKB"}, tables[0].Header)
	require.Len(t, tables[0].Rows, 1)
}

func TestExtractMarkdownNoTable(t *testing.T) {
	assert.Nil(t, ExtractMarkdown("no pipes here\njust text\n"))
}

func TestLocate(t *testing.T) {
	t.Run("picks first qualifying table", func(t *testing.T) {
		tables := []Table{
			{Header: []string{"Legend", "Meaning"}},
			{
				Header: []string{"Date", "IBIT", "FBTC", "BITB", "ARKB"},
				Rows:   [][]string{{"11 Jan 2024", "1", "2", "3", "4"}},
			},
			{
				Header: []string{"Date", "A", "B", "C", "D", "E"},
			},
		}

		got, err := Locate(tables)
		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "IBIT", "FBTC", "BITB", "ARKB"}, got.Header)
	})

	t.Run("date column is case-insensitive", func(t *testing.T) {
		tables := []Table{{
			Header: []string{"DATE", "A", "B", "C", "D"},
		}}
		_, err := Locate(tables)
		assert.NoError(t, err)
	})

	t.Run("rejects table without a date column", func(t *testing.T) {
		tables := []Table{{
			Header: []string{"Day", "A", "B", "C", "D"},
		}}
		_, err := Locate(tables)
		assert.ErrorIs(t, err, ErrNoFlowsTable)
	})

	t.Run("rejects narrow summary table", func(t *testing.T) {
		tables := []Table{{
			Header: []string{"Date", "Total", "Average"},
		}}
		_, err := Locate(tables)
		assert.ErrorIs(t, err, ErrNoFlowsTable)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := Locate(nil)
		assert.ErrorIs(t, err, ErrNoFlowsTable)
	})
}

func TestLocateDropsMetaColumns(t *testing.T) {
	tables := []Table{{
		Header: []string{"Date", "IBIT", "Total", "FBTC", "BTC Cumulative", "ARKB", "Issuer AUM"},
		Rows: [][]string{
			{"11 Jan 2024", "1", "100", "2", "500", "3", "900"},
		},
	}}

	got, err := Locate(tables)
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "IBIT", "FBTC", "ARKB"}, got.Header)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, []string{"11 Jan 2024", "1", "2", "3"}, got.Rows[0])
}

func TestStripTags(t *testing.T) {
	text := StripTags("<html><body><div>line one</div><div>line two</div></body></html>")
	assert.Contains(t, text, "line one")
	assert.Contains(t, text, "line two")

	lines := strings.Split(text, "\n")
	var nonEmpty []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(l))
		}
	}
	assert.Equal(t, []string{"line one", "line two"}, nonEmpty)
}

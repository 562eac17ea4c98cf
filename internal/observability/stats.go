package observability

import (
	"sync"
	"sync/atomic"
)

// StatsSnapshot is a point-in-time copy of the pipeline counters, exposed on
// the /stats endpoint so operators can tell "no flow" days from parse
// problems.
type StatsSnapshot struct {
	FetchAttempts     uint64            `json:"fetch_attempts"`
	VariantFailures   uint64            `json:"variant_failures"`
	DatasetsBuilt     uint64            `json:"datasets_built"`
	CellsCoerced      uint64            `json:"cells_coerced"`
	RowsDropped       uint64            `json:"rows_dropped"`
	ErrorsTotal       uint64            `json:"errors_total"`
	AttemptsByVariant map[string]uint64 `json:"attempts_by_variant,omitempty"`
	ErrorsByType      map[string]uint64 `json:"errors_by_type,omitempty"`
}

var (
	fetchAttempts   uint64
	variantFailures uint64
	datasetsBuilt   uint64
	cellsCoerced    uint64
	rowsDropped     uint64
	errorsTotal     uint64

	statsMu           sync.Mutex
	attemptsByVariant = map[string]uint64{}
	errorsByType      = map[string]uint64{}
)

func IncFetchAttempt(variant string) {
	atomic.AddUint64(&fetchAttempts, 1)
	if variant == "" {
		variant = "unknown"
	}
	statsMu.Lock()
	attemptsByVariant[variant]++
	statsMu.Unlock()
}

func IncVariantFailure(err error) {
	atomic.AddUint64(&variantFailures, 1)
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[ClassifyError(err)]++
	statsMu.Unlock()
}

func IncDatasetBuilt() {
	atomic.AddUint64(&datasetsBuilt, 1)
}

func AddCellsCoerced(n int) {
	if n > 0 {
		atomic.AddUint64(&cellsCoerced, uint64(n))
	}
}

func AddRowsDropped(n int) {
	if n > 0 {
		atomic.AddUint64(&rowsDropped, uint64(n))
	}
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	attemptsCopy := copyMap(attemptsByVariant)
	errorsCopy := copyMap(errorsByType)
	statsMu.Unlock()

	return StatsSnapshot{
		FetchAttempts:     atomic.LoadUint64(&fetchAttempts),
		VariantFailures:   atomic.LoadUint64(&variantFailures),
		DatasetsBuilt:     atomic.LoadUint64(&datasetsBuilt),
		CellsCoerced:      atomic.LoadUint64(&cellsCoerced),
		RowsDropped:       atomic.LoadUint64(&rowsDropped),
		ErrorsTotal:       atomic.LoadUint64(&errorsTotal),
		AttemptsByVariant: attemptsCopy,
		ErrorsByType:      errorsCopy,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

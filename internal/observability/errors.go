package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/flowsider/etfflow/internal/htmltab"
	"github.com/flowsider/etfflow/internal/httpx"
)

const (
	ErrorNetwork   = "network"
	ErrorParsing   = "parsing"
	ErrorRateLimit = "rate_limit"
	ErrorUnknown   = "unknown"
)

// ClassifyError buckets a per-variant failure for the stats counters.
func ClassifyError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	if errors.Is(err, htmltab.ErrNoFlowsTable) {
		return ErrorParsing
	}
	var fe *httpx.FetchError
	if errors.As(err, &fe) {
		if fe.Status == http.StatusTooManyRequests {
			return ErrorRateLimit
		}
		return ErrorNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorNetwork
	}
	return ErrorUnknown
}

package flows

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Scale is the multiplier applied to a bare numeral without its own scale
// suffix. The same numeral means different things on different pages: the
// upstream flows table reports in millions of USD, a per-line-item feed would
// report full magnitudes. The caller picks the default per source.
type Scale float64

const (
	ScaleUnit     Scale = 1
	ScaleMillions Scale = 1e6
	ScaleBillions Scale = 1e9
)

// placeholders are upstream's "no data" spellings, compared after trimming
// and lower-casing. They normalize to zero without counting as malformed.
var placeholders = map[string]struct{}{
	"":    {},
	"-":   {},
	"--":  {},
	"—":   {},
	"–":   {},
	"n/a": {},
	"nan": {},
}

var numeral = regexp.MustCompile(`^[+-]?\d+(\.\d+)?[mb]?$`)

// cellCleaner strips currency markers and thousands separators and folds the
// Unicode minus into ASCII before numeric parsing.
var cellCleaner = strings.NewReplacer(
	"$", "",
	"£", "",
	"€", "",
	",", "",
	"−", "-",
	"(", "-", // accounting negatives: (155.3) means -155.3
	")", "",
)

// Normalize converts a raw table cell into a signed USD amount. The boolean
// reports whether the cell parsed cleanly; placeholders are clean zeros,
// while anything unrecognized fails soft to zero with ok=false so a blank-y
// upstream never aborts a whole batch. The result is always finite.
func Normalize(raw string, defaultScale Scale) (value float64, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if _, isPlaceholder := placeholders[s]; isPlaceholder {
		return 0, true
	}

	s = cellCleaner.Replace(s)
	s = strings.TrimSuffix(strings.TrimSpace(s), "usd")
	s = strings.TrimSpace(s)

	if _, isPlaceholder := placeholders[s]; isPlaceholder {
		return 0, true
	}
	if !numeral.MatchString(s) {
		return 0, false
	}

	scale := float64(defaultScale)
	switch s[len(s)-1] {
	case 'm':
		scale = float64(ScaleMillions)
		s = s[:len(s)-1]
	case 'b':
		scale = float64(ScaleBillions)
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	n *= scale
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

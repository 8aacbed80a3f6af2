package perf

import (
	"fmt"
	"strings"
	"time"

	"cryptobroker/internal/domain"
)

// Granularity selects how many candles a time range is split into.
type Granularity int

const (
	IntraDay Granularity = iota
	Daily
	Weekly
	Monthly
	Quarterly
	Annual
)

const secondsPerDay = 24 * 60 * 60

// GranularityMeta holds the name and bucket count rule of a Granularity.
type GranularityMeta struct {
	Name    string
	buckets func(seconds int64) int64
}

// All divisions truncate. Spans are whole seconds so ranges beyond the
// ~292 years a time.Duration can hold still count correctly.
var granularities = map[Granularity]GranularityMeta{
	IntraDay:  {Name: "intraday", buckets: func(s int64) int64 { return s / 60 / 120 }},
	Daily:     {Name: "daily", buckets: func(s int64) int64 { return s / secondsPerDay }},
	Weekly:    {Name: "weekly", buckets: func(s int64) int64 { return s / secondsPerDay / 7 }},
	Monthly:   {Name: "monthly", buckets: func(s int64) int64 { return s / secondsPerDay / 7 / 4 }},
	Quarterly: {Name: "quarterly", buckets: func(s int64) int64 { return s / secondsPerDay / (365 / 4) }},
	Annual:    {Name: "annual", buckets: func(s int64) int64 { return s / secondsPerDay / 365 }},
}

func (g Granularity) String() string {
	if m, ok := granularities[g]; ok {
		return m.Name
	}
	return fmt.Sprintf("granularity(%d)", int(g))
}

// IsValid checks if g is one of the predefined granularities
func (g Granularity) IsValid() bool {
	_, ok := granularities[g]
	return ok
}

// ParseGranularity accepts the lower-case names, e.g. "intraday" or "daily".
func ParseGranularity(s string) (Granularity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for g, m := range granularities {
		if m.Name == name {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, domain.ErrInvalidGranularity)
}

// BucketCount derives the number of candles for [start, end] at granularity g.
// Ranges shorter than one bucket clamp to a single candle.
func BucketCount(start, end time.Time, g Granularity) (int, error) {
	if !end.After(start) {
		return 0, domain.ErrInvalidRange
	}
	m, ok := granularities[g]
	if !ok {
		return 0, fmt.Errorf("%s: %w", g, domain.ErrInvalidGranularity)
	}

	n := m.buckets(end.Unix() - start.Unix())
	if n < 1 {
		n = 1
	}
	return int(n), nil
}

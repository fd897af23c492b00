// Package cpi fetches Consumer Price Index readings from the BLS public
// time-series API and serves them through a read-through cache.
package cpi

import (
	"strconv"
	"strings"
)

// Query identifies one monthly CPI reading. Two queries are equivalent when
// their years are equal and their months match case-insensitively after
// trimming surrounding whitespace.
type Query struct {
	Year  int
	Month string
}

// Normalize returns the canonical form of q, used as the cache key.
func (q Query) Normalize() Query {
	return Query{
		Year:  q.Year,
		Month: strings.ToLower(strings.TrimSpace(q.Month)),
	}
}

// String renders q as "<year>-<month>".
func (q Query) String() string {
	return strconv.Itoa(q.Year) + "-" + q.Month
}

// Record is a normalized CPI reading.
type Record struct {
	// Value is the index value rounded to the nearest whole number.
	Value int `json:"cpiValue"`
	// Notes holds the non-blank footnote texts joined with "; ".
	Notes string `json:"notes"`
}

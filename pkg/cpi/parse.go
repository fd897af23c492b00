package cpi

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const notesSeparator = "; "

// decimalPattern is the plain decimal notation BLS uses. It keeps
// strconv.ParseFloat from accepting hex floats, underscores, Inf or NaN.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// parseDocument locates the record for q in a BLS time-series response.
// Every lookup is optional: a missing key, a value of the wrong type or an
// empty array yields ErrNotFound. Only a body that is not JSON at all, or a
// value that is present but not a number, is reported as an *UpstreamError.
func parseDocument(body []byte, q Query) (Record, error) {
	if !gjson.ValidBytes(body) {
		return Record{}, &UpstreamError{Op: OpDecode, Err: errors.New("response body is not valid JSON")}
	}
	doc := gjson.ParseBytes(body)

	results := doc.Get("Results")
	if !results.IsObject() {
		return Record{}, ErrNotFound
	}
	series := results.Get("series")
	if !series.IsArray() {
		return Record{}, ErrNotFound
	}
	first := series.Get("0")
	if !first.IsObject() {
		return Record{}, ErrNotFound
	}
	data := first.Get("data")
	if !data.IsArray() {
		return Record{}, ErrNotFound
	}

	match, ok := findPeriod(data, q)
	if !ok {
		return Record{}, ErrNotFound
	}

	value, err := parseValue(match.Get("value"))
	if err != nil {
		return Record{}, err
	}

	return Record{
		Value: value,
		Notes: joinFootnotes(match.Get("footnotes")),
	}, nil
}

// findPeriod returns the first element of data whose year and period name
// match q.
func findPeriod(data gjson.Result, q Query) (gjson.Result, bool) {
	wantYear := strconv.Itoa(q.Year)
	wantMonth := strings.TrimSpace(q.Month)

	var match gjson.Result
	found := false
	data.ForEach(func(_, d gjson.Result) bool {
		if !d.IsObject() {
			return true
		}
		year, ok := scalarText(d.Get("year"))
		if !ok || year != wantYear {
			return true
		}
		period := d.Get("periodName")
		if period.Type != gjson.String || !strings.EqualFold(strings.TrimSpace(period.Str), wantMonth) {
			return true
		}
		match, found = d, true
		return false
	})
	return match, found
}

// parseValue rounds the decimal string v half away from zero. An absent,
// null or blank value is ErrNotFound; anything else that is not a finite
// number is an upstream error rather than a silent zero.
func parseValue(v gjson.Result) (int, error) {
	text, ok := scalarText(v)
	if !ok {
		if !v.Exists() || v.Type == gjson.Null {
			return 0, ErrNotFound
		}
		return 0, &UpstreamError{Op: OpValue, Err: fmt.Errorf("value has unexpected JSON type %s", v.Type)}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrNotFound
	}

	if !decimalPattern.MatchString(text) {
		return 0, &UpstreamError{Op: OpValue, Err: fmt.Errorf("value %q is not a decimal number", text)}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &UpstreamError{Op: OpValue, Err: fmt.Errorf("value %q is not a number: %w", text, err)}
	}
	rounded := math.Round(f)
	if math.IsNaN(rounded) || math.IsInf(rounded, 0) || rounded >= math.MaxInt64 || rounded < math.MinInt64 {
		return 0, &UpstreamError{Op: OpValue, Err: fmt.Errorf("value %q is out of range", text)}
	}
	return int(rounded), nil
}

// joinFootnotes joins the trimmed, non-blank text fields of footnotes.
func joinFootnotes(footnotes gjson.Result) string {
	if !footnotes.IsArray() {
		return ""
	}
	var texts []string
	footnotes.ForEach(func(_, fn gjson.Result) bool {
		text := fn.Get("text")
		if text.Type != gjson.String {
			return true
		}
		if s := strings.TrimSpace(text.Str); s != "" {
			texts = append(texts, s)
		}
		return true
	})
	return strings.Join(texts, notesSeparator)
}

// scalarText returns the textual form of a JSON string or number.
func scalarText(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		return r.Str, true
	case gjson.Number:
		return r.Raw, true
	default:
		return "", false
	}
}

package normalize

import (
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// secondsDigits is the length of a decimal epoch in seconds for dates between
// 2001-09-09 and 2286-11-20. Values of exactly this length are read as seconds.
//
// Millisecond values from 1970-01-01 to 1970-04-26 also have 10 digits and are
// misread as seconds. That window is a known, unresolved ambiguity.
const secondsDigits = 10

// smallDateTime is the bound under which a stored date is assumed to hold
// seconds rather than milliseconds.
const smallDateTime = 10_000_000_000

// Millis converts any observed timestamp representation to epoch milliseconds.
// Precedence: datetime, int64, int32, double, timestamp, decimal string.
// It reports false when v has none of these kinds or cannot be read as a
// non-negative epoch.
func Millis(v any) (int64, bool) {
	switch KindOf(v) {
	case KindDateTime:
		ms := int64(v.(bson.DateTime))
		if ms < 0 {
			return 0, false
		}
		if ms < smallDateTime {
			return ms * 1000, true
		}
		return ms, true
	case KindInt64:
		switch n := v.(type) {
		case int64:
			return digitsMillis(strconv.FormatInt(n, 10))
		case int:
			return digitsMillis(strconv.Itoa(n))
		}
	case KindInt32:
		return digitsMillis(strconv.FormatInt(int64(v.(int32)), 10))
	case KindDouble:
		f := v.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
			return 0, false
		}
		return digitsMillis(strconv.FormatInt(int64(math.Trunc(f)), 10))
	case KindTimestamp:
		return int64(v.(bson.Timestamp).T) * 1000, true
	case KindString:
		return digitsMillis(strings.TrimSpace(v.(string)))
	}
	return 0, false
}

// digitsMillis applies the seconds heuristic to a decimal representation.
// Any fractional part is discarded.
func digitsMillis(s string) (int64, bool) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	if len(s) == secondsDigits {
		return n * 1000, true
	}
	return n, true
}

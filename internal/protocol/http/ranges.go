package http

import (
	"strconv"
	"strings"
)

// rangeUnit is the only unit the server understands.
const rangeUnit = "bytes="

// ByteRange is an inclusive interval of a resource's bytes.
//
// Every range returned by ResolveRanges satisfies 0 <= Start <= End < size.
type ByteRange struct {
	Start int64
	End   int64
	Valid bool
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ResolveRanges expands a raw Range value against a resource of the given
// size.
//
// Per RFC 7233 Section 2.1 a byte-range-set is a comma separated list of
// "first-last", "first-" and "-suffix" terms. Terms that are malformed or
// cannot be satisfied are dropped rather than failing the whole header:
//   - last beyond the resource is clamped to size-1
//   - a suffix longer than the resource selects the whole resource
//   - a zero suffix selects nothing and is dropped
//
// An empty result means no usable range; the caller answers 416.
func ResolveRanges(raw string, size int64) []ByteRange {
	if !strings.HasPrefix(raw, rangeUnit) || size <= 0 {
		return nil
	}

	var ranges []ByteRange
	for _, term := range strings.Split(raw[len(rangeUnit):], ",") {
		if r, ok := resolveTerm(strings.TrimSpace(term), size); ok {
			ranges = append(ranges, r)
		}
	}
	return ranges
}

func resolveTerm(term string, size int64) (ByteRange, bool) {
	first, last, ok := strings.Cut(term, "-")
	if !ok {
		return ByteRange{}, false
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)

	// suffix form: -N
	if first == "" {
		n, err := parseOffset(last)
		if err != nil || n == 0 {
			return ByteRange{}, false
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: size - 1, Valid: true}, true
	}

	start, err := parseOffset(first)
	if err != nil || start >= size {
		return ByteRange{}, false
	}

	// open form: N-
	if last == "" {
		return ByteRange{Start: start, End: size - 1, Valid: true}, true
	}

	end, err := parseOffset(last)
	if err != nil || end < start {
		return ByteRange{}, false
	}
	if end >= size {
		end = size - 1
	}
	return ByteRange{Start: start, End: end, Valid: true}, true
}

// parseOffset accepts only plain decimal digits.
func parseOffset(s string) (int64, error) {
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(s, 10, 64)
}

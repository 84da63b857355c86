package numbering

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidNumber indicates an override value that is not a dotted
// sequence of positive integers.
var ErrInvalidNumber = errors.New("numbering: invalid number")

// ParseNumber splits a dotted outline number into its segments.
func ParseNumber(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	parts := strings.Split(value, ".")
	segments := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, value)
		}
		segments[i] = n
	}
	return segments, nil
}

// FormatNumber joins segments with dots.
func FormatNumber(segments []int) string {
	parts := make([]string, len(segments))
	for i, n := range segments {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Depth is the number of dot-separated segments; the empty number has
// depth zero.
func Depth(number string) int {
	if number == "" {
		return 0
	}
	return strings.Count(number, ".") + 1
}

// LastSegment returns the final segment as an integer.
func LastSegment(number string) (int, bool) {
	if number == "" {
		return 0, false
	}
	last := number[strings.LastIndexByte(number, '.')+1:]
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WithLastSegment replaces the final segment, keeping any ancestor prefix.
func WithLastSegment(number string, value int) string {
	idx := strings.LastIndexByte(number, '.')
	if idx < 0 {
		return strconv.Itoa(value)
	}
	return number[:idx+1] + strconv.Itoa(value)
}

// ShiftLast adds delta to the final segment. Results below one clamp to
// one so a shifted number is always a valid override.
func ShiftLast(number string, delta int) string {
	last, ok := LastSegment(number)
	if !ok {
		return number
	}
	shifted := last + delta
	if shifted < 1 {
		shifted = 1
	}
	return WithLastSegment(number, shifted)
}

// ReplacePrefix swaps oldPrefix for newPrefix when number is oldPrefix
// itself or one of its descendants.
func ReplacePrefix(number, oldPrefix, newPrefix string) (string, bool) {
	if number == oldPrefix {
		return newPrefix, true
	}
	if !strings.HasPrefix(number, oldPrefix+".") {
		return number, false
	}
	return newPrefix + number[len(oldPrefix):], true
}

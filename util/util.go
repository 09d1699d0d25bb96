// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
)

// Uint16SliceToCSV converts a slice of uint16s to CSV formatted data.
// e.g., []uint16{1,2,3,4,5} => "1,2,3,4,5"
func Uint16SliceToCSV(us []uint16) string {
	s := make([]string, len(us))
	for i, v := range us {
		s[i] = strconv.FormatUint(uint64(v), 10)
	}

	return strings.Join(s, ",")
}

// AllElementsNumbers returns true if every rune in the string is a digit
// or decimal point
func AllElementsNumbers(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return len(s) > 0
}

// Package units parses human-entered size strings and formats byte counts
// for log records. All suffixes are binary multiples of 1024; "k" and "ki"
// are synonyms, as are "m"/"mi", "g"/"gi", "t"/"ti".
package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/container-tools/cgpress/pkg/errors"
)

const (
	KiB = int64(1) << 10
	MiB = int64(1) << 20
	GiB = int64(1) << 30
	TiB = int64(1) << 40
)

// Longest suffix first so "mi" is not consumed as a bare "m" with a
// trailing "i" left in the number.
var sizeSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"ki", KiB},
	{"mi", MiB},
	{"gi", GiB},
	{"ti", TiB},
	{"k", KiB},
	{"m", MiB},
	{"g", GiB},
	{"t", TiB},
}

// ParseSize converts strings like "512", "64Mi", "1.5g" to a byte count.
// With a suffix the numeric part may be fractional and the result is
// truncated to whole bytes; a bare number must be a whole byte count.
func ParseSize(s string) (int64, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return 0, errors.NewValidationError("empty size string", nil)
	}
	for _, entry := range sizeSuffixes {
		if !strings.HasSuffix(trimmed, entry.suffix) {
			continue
		}
		number := strings.TrimSpace(strings.TrimSuffix(trimmed, entry.suffix))
		value, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, errors.NewValidationError("invalid size string", err).WithContext("input", s)
		}
		return int64(value * float64(entry.multiplier)), nil
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("invalid size string", err).WithContext("input", s)
	}
	return value, nil
}

// HumanBytes renders a byte count with the largest binary unit that keeps
// the value below 1024, with two decimal places.
func HumanBytes(n int64) string {
	value := float64(n)
	for _, unit := range []string{"B", "KiB", "MiB", "GiB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f TiB", value)
}

// HumanBytesPtr renders an optional byte count, "n/a" when absent.
// Telemetry values are frequently absent and the log format treats that as
// ordinary data, not an error.
func HumanBytesPtr(n *int64) string {
	if n == nil {
		return "n/a"
	}
	return HumanBytes(*n)
}

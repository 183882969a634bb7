// Package timefmt renders playback positions and cumulative watch time.
package timefmt

import (
	"math"
	"strconv"
	"strings"
)

// Precision selects whether Format includes milliseconds.
type Precision int

const (
	// WithoutMilliseconds renders m:ss or h:mm:ss.
	WithoutMilliseconds Precision = iota
	// WithMilliseconds renders m:ss.mmm or h:mm:ss.mmm.
	WithMilliseconds
)

// PrecisionFor maps the showMilliseconds preference to a Precision.
func PrecisionFor(showMilliseconds bool) Precision {
	if showMilliseconds {
		return WithMilliseconds
	}
	return WithoutMilliseconds
}

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerYear   = 365 * secondsPerDay
)

// MaxSeconds is the largest input rendered exactly, about 31 million years.
// Its millisecond count still fits in an int64.
const MaxSeconds = 1e15

// Renderable reports whether seconds can be passed to Format or FormatTotal
// and rendered as given. NaN, infinities, negative values and anything above
// MaxSeconds must be filtered by the caller.
func Renderable(seconds float64) bool {
	return !math.IsNaN(seconds) && seconds >= 0 && seconds <= MaxSeconds
}

// clamp keeps Format and FormatTotal total: out of range inputs render as
// the nearest bound and NaN as zero.
func clamp(seconds float64) float64 {
	switch {
	case math.IsNaN(seconds) || seconds < 0:
		return 0
	case seconds > MaxSeconds:
		return MaxSeconds
	}
	return seconds
}

// Format renders a playback position. Every component is truncated, so
// 3661.9999 is 1:01:01.999 and never rolls over into the next second.
func Format(seconds float64, p Precision) string {
	// Scaling before flooring keeps decimal inputs like 3661.234 exact;
	// math.Mod(3661.234, 1) would yield 0.23399999.
	totalMillis := int64(math.Floor(clamp(seconds) * 1000))
	whole := totalMillis / 1000
	hours := whole / secondsPerHour
	minutes := (whole % secondsPerHour) / secondsPerMinute
	secs := whole % secondsPerMinute

	var b strings.Builder
	if hours > 0 {
		b.WriteString(strconv.FormatInt(hours, 10))
		b.WriteByte(':')
		writePadded(&b, minutes, 2)
	} else {
		b.WriteString(strconv.FormatInt(minutes, 10))
	}
	b.WriteByte(':')
	writePadded(&b, secs, 2)

	if p == WithMilliseconds {
		b.WriteByte('.')
		writePadded(&b, totalMillis%1000, 3)
	}
	return b.String()
}

// FormatTotal renders cumulative watch time as "1y 2d 3h 4m 5s", leaving out
// every zero-valued unit. A zero total renders as "0s".
func FormatTotal(seconds float64) string {
	whole := int64(math.Floor(clamp(seconds)))

	units := []struct {
		value  int64
		suffix byte
	}{
		{whole / secondsPerYear, 'y'},
		{(whole % secondsPerYear) / secondsPerDay, 'd'},
		{(whole % secondsPerDay) / secondsPerHour, 'h'},
		{(whole % secondsPerHour) / secondsPerMinute, 'm'},
	}

	parts := make([]string, 0, 5)
	for _, u := range units {
		if u.value > 0 {
			parts = append(parts, strconv.FormatInt(u.value, 10)+string(u.suffix))
		}
	}

	secs := whole % secondsPerMinute
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, strconv.FormatInt(secs, 10)+"s")
	}
	return strings.Join(parts, " ")
}

func writePadded(b *strings.Builder, v int64, width int) {
	s := strconv.FormatInt(v, 10)
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}

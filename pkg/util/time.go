package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatDuration converts time.Duration to ffmpeg timestamp format
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}

// ParseTimestamp parses a timestamp string (HH:MM:SS.mmm or SS.mmm or MM:SS)
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp format: %s", s)
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp format: %s", s)
		}
		total = total*60 + v
	}

	return Seconds(total), nil
}

// ParseSRTTimestamp parses a SubRip timestamp (HH:MM:SS,mmm). A '.' is
// accepted in place of the comma since WebVTT-flavoured files are common.
func ParseSRTTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	hms, ms, ok := strings.Cut(strings.Replace(s, ".", ",", 1), ",")
	if !ok {
		ms = "0"
	}

	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid srt timestamp: %q", s)
	}

	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	millis, err4 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, fmt.Errorf("invalid srt timestamp: %q", s)
	}
	if h < 0 || m < 0 || sec < 0 || millis < 0 {
		return 0, fmt.Errorf("invalid srt timestamp: %q", s)
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatSRTTimestamp formats d as HH:MM:SS,mmm
func FormatSRTTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	ms := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatClock formats d as HH:MM:SS.mmm for transport displays.
// Zero and negative durations render as 00:00:00.000.
func FormatClock(d time.Duration) string {
	if d <= 0 {
		return "00:00:00.000"
	}
	return strings.Replace(FormatSRTTimestamp(d), ",", ".", 1)
}

// FormatShort formats d as m:ss
func FormatShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatTimestamp formats a duration as a simple timestamp string
func FormatTimestamp(d time.Duration) string {
	return FormatDuration(d)
}

// Seconds converts fractional seconds to a Duration. NaN and infinities
// map to zero.
func Seconds(s float64) time.Duration {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// ParseFrameRate parses frame rate from ffprobe format (e.g., "30/1")
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

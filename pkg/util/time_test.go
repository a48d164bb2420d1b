package util

import (
	"math"
	"testing"
	"time"
)

func TestParseSRTTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"00:00:01,000", time.Second, true},
		{"01:02:03,456", time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond, true},
		{"00:00:05.250", 5*time.Second + 250*time.Millisecond, true},
		{" 00:01:00,000 ", time.Minute, true},
		{"00:01", 0, false},
		{"aa:bb:cc,ddd", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSRTTimestamp(tt.in)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseSRTTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatSRTTimestampRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, 1500 * time.Millisecond, 59*time.Minute + 59*time.Second + 999*time.Millisecond, 3*time.Hour + 7*time.Millisecond} {
		s := FormatSRTTimestamp(d)
		back, err := ParseSRTTimestamp(s)
		if err != nil {
			t.Fatalf("ParseSRTTimestamp(%q): %v", s, err)
		}
		if back != d {
			t.Errorf("round trip %v -> %q -> %v", d, s, back)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(0); got != "00:00:00.000" {
		t.Errorf("FormatClock(0) = %q", got)
	}
	if got := FormatClock(-time.Second); got != "00:00:00.000" {
		t.Errorf("FormatClock(-1s) = %q", got)
	}
	if got := FormatClock(3723*time.Second + 45*time.Millisecond); got != "01:02:03.045" {
		t.Errorf("FormatClock = %q", got)
	}
}

func TestFormatShort(t *testing.T) {
	if got := FormatShort(75 * time.Second); got != "1:15" {
		t.Errorf("FormatShort(75s) = %q", got)
	}
	if got := FormatShort(9 * time.Second); got != "0:09" {
		t.Errorf("FormatShort(9s) = %q", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("01:00:30.5")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Hour + 30*time.Second + 500*time.Millisecond; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := ParseTimestamp("1:2:3:4"); err == nil {
		t.Error("expected error for four fields")
	}
}

func TestSeconds(t *testing.T) {
	if Seconds(math.NaN()) != 0 || Seconds(math.Inf(1)) != 0 {
		t.Error("non-finite input should map to zero")
	}
	if Seconds(2.5) != 2500*time.Millisecond {
		t.Errorf("Seconds(2.5) = %v", Seconds(2.5))
	}
}

func TestHumanBytes(t *testing.T) {
	if got := HumanBytes(50 << 20); got != "50.0 MiB" {
		t.Errorf("HumanBytes = %q", got)
	}
	if got := HumanBytes(512); got != "512 B" {
		t.Errorf("HumanBytes = %q", got)
	}
}

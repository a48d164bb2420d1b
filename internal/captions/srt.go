// Package captions models subtitle timing documents (SubRip) as ordered,
// time-ranged cues and answers which cue is on screen at a given instant.
package captions

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/recapcannon/pkg/util"
)

// Cue is one timed block of subtitle text. Text may span several lines.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Contains reports whether t falls inside the cue, bounds inclusive.
func (c Cue) Contains(t time.Duration) bool {
	return c.Start <= t && t <= c.End
}

// Lines splits the cue text into display lines
func (c Cue) Lines() []string {
	return strings.Split(c.Text, "\n")
}

const arrow = "-->"

// Parse reads a SubRip document. Malformed or partial blocks are dropped;
// Parse never fails.
func Parse(doc string) []Cue {
	doc = strings.TrimPrefix(doc, "\uFEFF")
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	doc = strings.ReplaceAll(doc, "\r", "\n")

	var cues []Cue
	for _, block := range splitBlocks(doc) {
		if cue, ok := parseBlock(block); ok {
			cues = append(cues, cue)
		}
	}
	return cues
}

// ParseFile reads and parses a SubRip file from disk
func ParseFile(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitles: %w", err)
	}
	return Parse(string(data)), nil
}

func splitBlocks(doc string) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseBlock(lines []string) (Cue, bool) {
	var cue Cue

	i := 0
	if !strings.Contains(lines[0], arrow) {
		n, err := strconv.Atoi(lines[0])
		if err != nil {
			return Cue{}, false
		}
		cue.Index = n
		i = 1
	}
	if i >= len(lines) {
		return Cue{}, false
	}

	start, end, ok := parseTiming(lines[i])
	if !ok || start > end {
		return Cue{}, false
	}
	cue.Start, cue.End = start, end

	text := lines[i+1:]
	if len(text) == 0 {
		return Cue{}, false
	}
	cue.Text = strings.Join(text, "\n")
	return cue, true
}

func parseTiming(line string) (time.Duration, time.Duration, bool) {
	left, right, ok := strings.Cut(line, arrow)
	if !ok {
		return 0, 0, false
	}
	// WebVTT-style position settings may trail the end timestamp
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, false
	}

	start, err := util.ParseSRTTimestamp(left)
	if err != nil {
		return 0, 0, false
	}
	end, err := util.ParseSRTTimestamp(fields[0])
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// ActiveCueAt returns the first cue whose range contains t.
// Cue counts are small, so this is a linear scan; overlap is not rejected
// and the earliest match wins.
func ActiveCueAt(cues []Cue, t time.Duration) (Cue, bool) {
	for _, c := range cues {
		if c.Contains(t) {
			return c, true
		}
	}
	return Cue{}, false
}

// Format renders cues back into a SubRip document, renumbering from 1
func Format(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1,
			util.FormatSRTTimestamp(c.Start), util.FormatSRTTimestamp(c.End), c.Text)
	}
	return b.String()
}

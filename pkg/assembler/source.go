package assembler

import (
	"bufio"
	"strings"
)

// DefaultFence is the marker line that opens and closes a code block.
const DefaultFence = "~~~"

// Line is one source line inside a code block.
type Line struct {
	Num  int    // 1-based line number in the whole document
	Text string // line with trailing whitespace removed
}

// Extract returns the lines of src that sit between fence lines. Each
// fence line toggles in and out of a code block; everything outside is
// prose and is dropped.
func Extract(src, fence string) []Line {
	if fence == "" {
		fence = DefaultFence
	}

	var lines []Line
	inBlock := false
	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	num := 0
	for scanner.Scan() {
		num++
		text := strings.TrimRight(scanner.Text(), " \t\r")
		if text == fence {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			lines = append(lines, Line{Num: num, Text: text})
		}
	}
	return lines
}

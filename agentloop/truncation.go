package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how tool output is shortened.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// TruncateOutput shortens output to at most maxChars bytes, marking what was
// removed. Cuts never split a UTF-8 sequence. A non-positive maxChars
// disables truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	if mode == TruncateTail {
		tail := output[runeStartAfter(output, len(output)-maxChars):]
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", len(output)-len(tail)) +
			tail
	}

	half := maxChars / 2
	head := output[:runeStartBefore(output, half)]
	tail := output[runeStartAfter(output, len(output)-(maxChars-half)):]
	removed := len(output) - len(head) - len(tail)
	return head +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need specific parts, call the tool again with narrower input.]\n\n", removed) +
		tail
}

// runeStartBefore returns the largest rune boundary at or before i.
func runeStartBefore(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeStartAfter returns the smallest rune boundary at or after i.
func runeStartAfter(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines keeps the first and last lines of output so that at most
// maxLines remain. A non-positive maxLines disables truncation.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncatePolicy is applied to tool output before it is sent back to the
// model. Recorded step results keep the full output.
type truncatePolicy struct {
	maxChars int
	maxLines int
	mode     TruncationMode
}

func (p truncatePolicy) apply(output string) string {
	return TruncateLines(TruncateOutput(output, p.maxChars, p.mode), p.maxLines)
}

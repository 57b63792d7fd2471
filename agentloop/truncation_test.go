package agentloop

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutput(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, TruncateOutput(short, 10, TruncateHeadTail))
	assert.Equal(t, short, TruncateOutput(short, 0, TruncateHeadTail))

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)

	headTail := TruncateOutput(long, 20, TruncateHeadTail)
	assert.True(t, strings.HasPrefix(headTail, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(headTail, strings.Repeat("b", 10)))
	assert.Contains(t, headTail, "80 characters were removed from the middle")

	tail := TruncateOutput(long, 20, TruncateTail)
	assert.True(t, strings.HasSuffix(tail, strings.Repeat("b", 20)))
	assert.Contains(t, tail, "First 80 characters were removed")
}

func TestTruncateOutputKeepsUTF8Intact(t *testing.T) {
	long := strings.Repeat("é", 30) + strings.Repeat("ü", 30)

	for _, max := range []int{7, 8, 21, 33} {
		headTail := TruncateOutput(long, max, TruncateHeadTail)
		assert.True(t, utf8.ValidString(headTail), "head_tail max=%d", max)
		assert.True(t, strings.HasPrefix(headTail, "é"))
		assert.True(t, strings.HasSuffix(headTail, "ü"))

		tail := TruncateOutput(long, max, TruncateTail)
		assert.True(t, utf8.ValidString(tail), "tail max=%d", max)
		assert.True(t, strings.HasSuffix(tail, "ü"))
	}

	assert.Contains(t, TruncateOutput(long, 7, TruncateHeadTail), "114 characters were removed")
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('0' + i))
	}
	input := strings.Join(lines, "\n")

	assert.Equal(t, input, TruncateLines(input, 0))
	assert.Equal(t, input, TruncateLines(input, 10))
	assert.Equal(t, "0\n1\n[... 6 lines omitted ...]\n8\n9", TruncateLines(input, 4))
}

func TestTruncatePolicy(t *testing.T) {
	var off truncatePolicy
	long := strings.Repeat("x", 1000)
	assert.Equal(t, long, off.apply(long))

	p := truncatePolicy{maxChars: 100, mode: TruncateHeadTail}
	assert.Less(t, len(p.apply(long)), len(long))
}

package llm

import (
	"unicode"
)

// DefaultSegmentSize 默认分段长度
const DefaultSegmentSize = 1000

// Segment splits input into chunks of at most size runes at whitespace boundaries.
// Whitespace runs stay attached to the following word; a word longer than size is sliced.
// Segment 按空白边界将输入切分为不超过 size 个字符的片段，超长单词会被截断
func Segment(input string, size int) []string {
	if size <= 0 {
		size = DefaultSegmentSize
	}
	runes := []rune(input)
	if len(runes) <= size {
		return []string{input}
	}

	var segments []string
	var current []rune
	for _, token := range tokenize(runes) {
		if len(current)+len(token) <= size {
			current = append(current, token...)
			continue
		}
		if len(current) > 0 {
			segments = append(segments, string(current))
			current = nil
		}
		for len(token) > size {
			segments = append(segments, string(token[:size]))
			token = token[size:]
		}
		current = append(current, token...)
	}
	if len(current) > 0 {
		segments = append(segments, string(current))
	}
	return segments
}

// tokenize splits runes into alternating word and whitespace runs
func tokenize(runes []rune) [][]rune {
	var tokens [][]rune
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) || unicode.IsSpace(runes[i]) != unicode.IsSpace(runes[start]) {
			tokens = append(tokens, runes[start:i])
			start = i
		}
	}
	return tokens
}

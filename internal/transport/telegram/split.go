package telegram

import "strings"

const (
	textLimit    = 4000
	captionLimit = 1024
)

// splitText breaks long messages into chunks Telegram accepts. It prefers
// newline boundaries and, in HTML mode, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	html := strings.EqualFold(parseMode, "HTML")
	out := make([]string, 0, len(rs)/limit+1)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = cutPoint(rs, start, end, limit, html)
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func cutPoint(rs []rune, start, end, limit int, html bool) int {
	for i := end - 1; i > start && i-start >= limit/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if !html {
		return end
	}
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed && open > start+1 {
		return open
	}
	return end
}

func runeLen(s string) int { return len([]rune(s)) }

package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/lectern/core"
)

// MaxHeaderLength is the longest line, in characters, treated as a running header.
const MaxHeaderLength = 80

// minHeaderPages is how many pages must share a first line for it to be a header.
const minHeaderPages = 2

// DetectPageHeaders finds running headers: first lines that repeat across
// pages once digits are ignored. It returns the raw header line per page number.
func DetectPageHeaders(pages []core.Page) map[int]string {
	firstLines := make(map[int]string, len(pages))
	counts := make(map[string]int)
	for _, page := range pages {
		line := firstLine(page.Text)
		if line == "" || utf8.RuneCountInString(line) > MaxHeaderLength {
			continue
		}
		key := headerKey(line)
		if key == "" {
			continue
		}
		firstLines[page.Number] = line
		counts[key]++
	}

	headers := make(map[int]string)
	for number, line := range firstLines {
		if counts[headerKey(line)] >= minHeaderPages {
			headers[number] = line
		}
	}
	return headers
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// headerKey drops digits and collapses whitespace so that "12 THE MOTHER"
// and "13 THE MOTHER" compare equal.
func headerKey(line string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, line)
	return strings.Join(strings.Fields(stripped), " ")
}

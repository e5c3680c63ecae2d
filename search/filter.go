package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinTextLength is the shortest passage, in characters, a query may return.
const MinTextLength = 50

const months = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

// boilerplatePatterns match lines that carry no content of their own.
var boilerplatePatterns = []*regexp.Regexp{
	// page numbers: "12", "- 12 -", "Page 12", "p. 12"
	regexp.MustCompile(`(?i)^(?:page|p\.)?\s*-?\s*\d+\s*-?$`),
	// chapter numbers: "Chapter 3", "CHAPTER IV", "XII."
	regexp.MustCompile(`(?i)^(?:chapter|chap\.)\s+(?:\d+|[ivxlcdm]+)\.?$`),
	regexp.MustCompile(`(?i)^[ivxlcdm]+\.?$`),
	// date stamps: "12.3.1954", "1954-03-12", "12 March 1954", "March 12, 1954"
	regexp.MustCompile(`^\d{1,4}[./-]\d{1,2}[./-]\d{1,4}$`),
	regexp.MustCompile(`(?i)^\d{1,2}\s+` + months + `\s+\d{4}$`),
	regexp.MustCompile(`(?i)^` + months + `\s+\d{1,2},?\s+\d{4}$`),
	// table of contents: "Contents", "Table of Contents", "Aspiration ........ 12"
	regexp.MustCompile(`(?i)^(?:table\s+of\s+)?contents$`),
	regexp.MustCompile(`^.*(?:\.\s*){4,}\d+$`),
	// punctuation and numbers only
	regexp.MustCompile(`^[\p{P}\p{S}\d\s]+$`),
	// parenthetical only: "(continued)", "(1954)"
	regexp.MustCompile(`^\(.*\)$`),
}

var blankRunPattern = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)

var bareNumber = regexp.MustCompile(`^\d+$`)

// isBoilerplateLine reports whether a trimmed, non-empty line is boilerplate.
func isBoilerplateLine(line string) bool {
	for _, pattern := range boilerplatePatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// isBoilerplate reports whether every non-blank line of text is boilerplate.
func isBoilerplate(text string) bool {
	seen := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen = true
		if !isBoilerplateLine(line) {
			return false
		}
	}
	return seen
}

// validity returns a rejection reason for text, or "" if the text is usable.
func validity(text string) RejectReason {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextLength {
		return ReasonTooShort
	}
	if isBoilerplate(text) {
		return ReasonBoilerplate
	}
	return ""
}

// Cleanup removes pagination artifacts from a passage.
// Runs of three or more blank lines become one blank line.
func Cleanup(text, pageHeader string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = stripTrailingNumbers(text)
	text = blankRunPattern.ReplaceAllString(text, "\n\n")

	if pageHeader != "" {
		trimmed := strings.TrimLeft(text, " \t\n")
		if strings.HasPrefix(trimmed, pageHeader) {
			text = trimmed[len(pageHeader):]
		}
	}
	return strings.TrimSpace(text)
}

// stripTrailingNumbers drops trailing lines that are blank or a bare number.
func stripTrailingNumbers(text string) string {
	lines := strings.Split(text, "\n")
	end := len(lines)
	for end > 0 {
		line := strings.TrimSpace(lines[end-1])
		if line != "" && !bareNumber.MatchString(line) {
			break
		}
		end--
	}
	return strings.Join(lines[:end], "\n")
}

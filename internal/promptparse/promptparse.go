// Package promptparse holds the permissive parsers for model output that is
// expected to follow a line or token convention. Parsers never fail: tokens
// that do not match are dropped.
package promptparse

import (
	"regexp"
	"strconv"
	"strings"
)

// A marker must be followed by whitespace or end the line, so "3.5 GHz" is
// left alone.
var enumerationRe = regexp.MustCompile(`^(?:\(?(?:[Qq]\s*)?\d+\s*[.):\]]|[-*•]|\d+\s*-)(?:\s+|$)`)

// StripEnumeration removes one leading list marker such as "1. ", "2) ",
// "(3)", "Q4:", "- " or "* " from line.
func StripEnumeration(line string) string {
	line = strings.TrimSpace(line)
	return strings.TrimSpace(enumerationRe.ReplaceAllString(line, ""))
}

// Lines splits text into non-blank lines with list markers removed.
func Lines(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		if line := StripEnumeration(raw); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Rating is one parsed "[index]=score" token.
type Rating struct {
	Index int
	Score int
}

// Ratings parses whitespace-separated "[i]=r" tokens. Brackets are optional,
// trailing punctuation on the rating is ignored, and any token that fails to
// parse is skipped. Order follows the input.
func Ratings(text string) []Rating {
	var out []Rating
	for _, tok := range strings.Fields(text) {
		if !strings.Contains(tok, "=") {
			continue
		}
		tok = strings.NewReplacer("[", "", "]", "").Replace(tok)
		idxPart, scorePart, _ := strings.Cut(tok, "=")
		idx, err := strconv.Atoi(strings.TrimSpace(idxPart))
		if err != nil {
			continue
		}
		score, err := strconv.Atoi(strings.TrimRight(scorePart, ",.;"))
		if err != nil {
			continue
		}
		out = append(out, Rating{Index: idx, Score: score})
	}
	return out
}

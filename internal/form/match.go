package form

import (
	"regexp"
	"strings"
)

var (
	truthyTokens = map[string]bool{
		"true": true, "yes": true, "y": true, "on": true, "1": true, "checked": true,
	}

	// Affirmative words a submit control is expected to carry
	submitWords = []string{
		"continue", "submit", "next", "save", "update", "agree", "apply",
		"send", "register", "sign up", "confirm", "finish",
	}

	errorKeywords = []string{
		"error", "invalid", "required", "enter a valid", "at least", "incorrect",
		"please check", "complete all", "must be", "not valid",
	}

	placeholderOption = regexp.MustCompile(`^(-+\s*)?(select|choose|please select|please choose|pick)\b.*$|^-+$|^none selected$`)
	whitespace        = regexp.MustCompile(`\s+`)
	nonWord           = regexp.MustCompile(`[^a-z0-9]+`)
)

// maxErrorTextLen bounds the text of a node that can count as an error message
const maxErrorTextLen = 500

func normalize(s string) string {
	return strings.ToLower(whitespace.ReplaceAllString(strings.TrimSpace(s), " "))
}

// MatchOption picks the option for value: exact match first, then the first
// option containing it. Returns -1 when nothing matches.
func MatchOption(options []string, value string) int {
	want := normalize(value)
	if want == "" {
		return -1
	}
	for i, opt := range options {
		if normalize(opt) == want {
			return i
		}
	}
	for i, opt := range options {
		if strings.Contains(normalize(opt), want) {
			return i
		}
	}
	return -1
}

// IsTruthy interprets a generated checkbox value
func IsTruthy(value string) bool {
	return truthyTokens[strings.ToLower(strings.TrimSpace(value))]
}

// isPlaceholderOption reports a "no selection" entry of a native select
func isPlaceholderOption(opt option) bool {
	text := normalize(opt.Text)
	if text == "" || strings.TrimSpace(opt.Value) == "" {
		return true
	}
	return placeholderOption.MatchString(text)
}

func isPlaceholderText(text string) bool {
	text = normalize(text)
	return text == "" || placeholderOption.MatchString(text)
}

// matchesSubmitWord checks for a vocabulary word on word boundaries
func matchesSubmitWord(text string) bool {
	padded := " " + strings.Trim(nonWord.ReplaceAllString(strings.ToLower(text), " "), " ") + " "
	for _, word := range submitWords {
		if strings.Contains(padded, " "+word+" ") {
			return true
		}
	}
	return false
}

// errorText returns the node text when it looks like a validation message
func errorText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxErrorTextLen {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return text, true
		}
	}
	return "", false
}

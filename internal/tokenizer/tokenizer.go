// Package tokenizer turns raw French/English text into index terms.
package tokenizer

import (
	"regexp"
	"strings"
)

var (
	annotationPattern = regexp.MustCompile(`【[^】]*】`)
	termPattern       = regexp.MustCompile(`[a-zàâäéèêëïîôöùûüçæœÿñ]+`)
)

// Tokenize lowercases text, drops 【…】 annotation markers and returns the
// maximal runs of Latin letters (accents included). Anything else separates terms.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	lower = annotationPattern.ReplaceAllString(lower, "")
	return termPattern.FindAllString(lower, -1)
}

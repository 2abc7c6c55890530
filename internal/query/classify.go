// Package query classifies free-text requests into the coarse categories
// used for provider selection.
package query

import (
	"strings"
	"unicode"
)

// Type is the heuristic category of a user request.
type Type string

const (
	General       Type = "general"
	Technical     Type = "technical"
	Creative      Type = "creative"
	Summarization Type = "summarization"
	Translation   Type = "translation"
	Code          Type = "code"
)

// Types lists every category in classification priority order, followed by
// the default.
var Types = []Type{Code, Summarization, Translation, Creative, Technical, General}

// Keywords match at the start of a word, so "debug" also matches
// "debugging". Multi-word entries match as phrases.
var keywordSets = []struct {
	typ      Type
	keywords []string
}{
	{Code, []string{
		"code", "function", "debug", "bug", "compile", "syntax", "script",
		"python", "javascript", "typescript", "golang", "java", "rust", "sql",
		"regex", "stack trace", "refactor", "algorithm", "unit test", "api endpoint",
	}},
	{Summarization, []string{
		"summarize", "summarise", "summary", "tl;dr", "tldr", "recap",
		"key points", "main points", "condense", "in short", "brief overview",
	}},
	{Translation, []string{
		"translate", "translation", "in spanish", "in french", "in german",
		"in italian", "in japanese", "in chinese", "in russian", "to english",
		"into english", "how do you say",
	}},
	{Creative, []string{
		"write a story", "story", "poem", "poetry", "lyrics", "creative",
		"imagine", "fiction", "novel", "haiku", "slogan", "brainstorm",
	}},
	{Technical, []string{
		"explain how", "how does", "technical", "architecture", "protocol",
		"configure", "install", "network", "database", "server", "kubernetes",
		"docker", "linux", "performance", "latency",
	}},
}

// Classify maps text to a Type. Keyword sets are tested in priority order
// (code, summarization, translation, creative, technical); the first set
// with a match wins. Text matching nothing is General.
func Classify(text string) Type {
	normalized := normalize(text)
	if normalized == " " {
		return General
	}
	for _, set := range keywordSets {
		for _, kw := range set.keywords {
			if strings.Contains(normalized, " "+strings.TrimSpace(normalize(kw))) {
				return set.typ
			}
		}
	}
	return General
}

// normalize lower-cases text and collapses every run of characters that
// are not letters, digits or ';' into a single space, padding both ends.
func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ';'
	})
	return " " + strings.Join(fields, " ") + " "
}

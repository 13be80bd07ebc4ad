// Package narration cleans generated story text so that everything left in it
// can be read aloud.
//
// Language models occasionally ignore instructions and emit stage directions
// such as "(Pause)" or "[Music swells]". A speech engine would read those
// literally, so they are removed after generation rather than trusted away
// by the prompt alone.
package narration

import (
	"regexp"
	"strings"
)

// Regex patterns for narration cleanup. Each annotation pattern matches an
// innermost group so nested annotations are removed by repeated passes.
// Bracket characters left unpaired afterwards are dropped on their own.
const (
	parentheticalPattern = `\([^()]*\)`
	bracketPattern       = `\[[^\[\]]*\]`
	bracePattern         = `\{[^{}]*\}`
	strayBracketPattern  = `[()\[\]{}]`
	paragraphPattern     = `\n\s*\n`
	whitespacePattern    = `\s+`
	spaceBeforePunct     = `\s+([.,!?;:])`
	leadingPunctPattern  = `^[.,;:]+\s*`
	markupCharacters     = "*_#"
	paragraphSeparator   = "\n\n"
)

// Punctuation normalization.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
)

// Sanitizer removes stage directions and formatting from narration text.
type Sanitizer struct {
	// Precompiled regex patterns.
	annotationPatterns []*regexp.Regexp
	strayBracket       *regexp.Regexp
	paragraphPattern   *regexp.Regexp
	whitespacePattern  *regexp.Regexp
	punctSpacing       *regexp.Regexp
	leadingPunct       *regexp.Regexp
	// Replacer for typographic punctuation and markup characters.
	punctuationReplacer *strings.Replacer
}

// NewSanitizer creates a sanitizer with compiled patterns.
func NewSanitizer() *Sanitizer {
	replacements := []string{
		carriageReturn, lineFeed,
		emDash, " - ",
		enDash, " - ",
		figureDash, " - ",
		ellipsisChar, ellipsis,
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	}

	for _, char := range markupCharacters {
		replacements = append(replacements, string(char), "")
	}

	return &Sanitizer{
		annotationPatterns: []*regexp.Regexp{
			regexp.MustCompile(parentheticalPattern),
			regexp.MustCompile(bracketPattern),
			regexp.MustCompile(bracePattern),
		},
		strayBracket:        regexp.MustCompile(strayBracketPattern),
		paragraphPattern:    regexp.MustCompile(paragraphPattern),
		whitespacePattern:   regexp.MustCompile(whitespacePattern),
		punctSpacing:        regexp.MustCompile(spaceBeforePunct),
		leadingPunct:        regexp.MustCompile(leadingPunctPattern),
		punctuationReplacer: strings.NewReplacer(replacements...),
	}
}

// Clean returns text with every bracketed, braced and parenthetical segment
// removed, markdown emphasis stripped and whitespace collapsed. An unpaired
// bracket loses only the bracket character, not the words after it. Paragraph
// breaks survive as a single blank line; paragraphs left empty are dropped.
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return text
	}

	cleaned := s.punctuationReplacer.Replace(text)
	cleaned = s.removeAnnotations(cleaned)

	paragraphs := s.paragraphPattern.Split(cleaned, -1)
	kept := make([]string, 0, len(paragraphs))

	for _, paragraph := range paragraphs {
		normalized := s.normalizeParagraph(paragraph)
		if normalized != "" {
			kept = append(kept, normalized)
		}
	}

	return strings.Join(kept, paragraphSeparator)
}

// HasAnnotations reports whether text still contains any bracket characters.
func HasAnnotations(text string) bool {
	return strings.ContainsAny(text, "()[]{}")
}

// removeAnnotations strips annotation groups from the inside out until none
// remain, then drops unpaired bracket characters. Every pass that changes the
// text shortens it, so the loop ends.
func (s *Sanitizer) removeAnnotations(text string) string {
	for {
		previous := text

		for _, pattern := range s.annotationPatterns {
			text = pattern.ReplaceAllString(text, "")
		}

		if text == previous {
			break
		}
	}

	return s.strayBracket.ReplaceAllString(text, "")
}

func (s *Sanitizer) normalizeParagraph(paragraph string) string {
	normalized := s.whitespacePattern.ReplaceAllString(paragraph, " ")
	normalized = strings.TrimSpace(normalized)
	normalized = s.punctSpacing.ReplaceAllString(normalized, "$1")
	normalized = s.leadingPunct.ReplaceAllString(normalized, "")

	return strings.TrimSpace(normalized)
}

package parser

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Token is one whitespace-separated word of the flattened report text.
type Token struct {
	Text      string
	LineStart bool // first token of a text line
	Index     int
}

var spaceReplacer = strings.NewReplacer(
	"\u00a0", " ", // no-break space
	"\u202f", " ", // narrow no-break space
	"\t", " ",
	"\r\n", "\n",
	"\r", "\n",
)

// Tokenize splits text into tokens, keeping line boundaries as flags.
// Text is NFC-normalized so labels compare equal regardless of how the PDF
// encoded umlauts.
func Tokenize(text string) []Token {
	text = spaceReplacer.Replace(norm.NFC.String(text))

	var tokens []Token
	for _, line := range strings.Split(text, "\n") {
		for i, field := range strings.Fields(line) {
			tokens = append(tokens, Token{
				Text:      field,
				LineStart: i == 0,
				Index:     len(tokens),
			})
		}
	}
	return tokens
}

func isNoise(s string) bool {
	switch s {
	case "€", "EUR", "|":
		return true
	}
	return false
}

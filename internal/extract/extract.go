// Package extract sniffs the content type of downloaded objects and pulls
// plain text out of the formats that carry it. Formats without extractable
// text are not an error; the pipeline completes them without enrichment.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// MaxTextLength caps the extracted text handed to the analysis providers.
// Longer documents are truncated at a rune boundary; enrichment quality
// degrades gracefully rather than blowing the provider's context limit.
const MaxTextLength = 8000

// Detect sniffs the MIME type of data from its magic bytes, ignoring
// whatever extension or client-reported type the upload carried.
func Detect(data []byte) string {
	return mimetype.Detect(data).String()
}

// textualMIMEs are non text/* types whose payload is still readable text.
var textualMIMEs = []string{
	"application/json",
	"application/xml",
	"application/x-ndjson",
	"text/csv",
	"text/html",
	"text/xml",
}

// IsTextual reports whether data holds extractable text, walking the sniffed
// type's parent chain so subtypes of text/plain are recognized.
func IsTextual(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
		for _, t := range textualMIMEs {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

// Text extracts the text content of data, truncated to MaxTextLength runes.
// It returns the empty string for formats that carry no extractable text,
// which callers treat as "nothing to analyze", not as a failure.
func Text(data []byte) string {
	if len(data) == 0 || !IsTextual(data) {
		return ""
	}

	text := strings.ToValidUTF8(string(data), "")
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > MaxTextLength {
		runes := []rune(text)
		text = string(runes[:MaxTextLength])
	}
	return text
}

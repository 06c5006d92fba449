// Package chunk splits page text into bounded, structure-aware pieces and
// plans them into embedding request batches.
package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxSize is the target chunk size in bytes.
const DefaultMaxSize = 1000

var (
	headerRe    = regexp.MustCompile(`(?m)^#{1,3} .+$`)
	paragraphRe = regexp.MustCompile(`\n{2,}`)
)

// Markdown splits markdown content into chunks of at most maxSize bytes while
// preserving semantic structure. Header-delimited sections (h1-h3) stay
// together when they fit; oversized sections are subdivided at blank-line
// paragraph boundaries. A single paragraph larger than maxSize is emitted
// whole, never dropped. Empty and whitespace-only chunks are discarded.
func Markdown(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if text == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if trimmed := strings.TrimSpace(cur.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		cur.Reset()
	}

	for _, section := range splitSections(text) {
		if cur.Len()+len(section) > maxSize && cur.Len() > 0 {
			flush()
		}
		if len(section) > maxSize {
			for _, paragraph := range paragraphRe.Split(section, -1) {
				if cur.Len()+len(paragraph) > maxSize && cur.Len() > 0 {
					flush()
				}
				cur.WriteString(paragraph)
				cur.WriteString("\n\n")
			}
		} else {
			cur.WriteString(section)
			cur.WriteString("\n")
		}
	}
	flush()
	return chunks
}

// splitSections cuts text at h1-h3 header lines, keeping each header line as
// its own segment so it travels with the section body that follows it.
func splitSections(text string) []string {
	matches := headerRe.FindAllStringIndex(text, -1)
	var out []string
	last := 0
	for _, m := range matches {
		if m[0] > last {
			out = append(out, text[last:m[0]])
		}
		out = append(out, text[m[0]:m[1]])
		last = m[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// SafeSplit cuts text into pieces of at most max bytes without ever splitting
// a multi-byte rune: a boundary landing inside one backs off to the rune
// start. Concatenating the returned slices reproduces text exactly.
func SafeSplit(text string, max int) []string {
	if max <= 0 {
		return []string{text}
	}
	var parts []string
	start := 0
	for start < len(text) {
		end := start + max
		if end >= len(text) {
			parts = append(parts, text[start:])
			break
		}
		for end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == start {
			// max is smaller than the rune at start; emit the whole rune.
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}
		parts = append(parts, text[start:end])
		start = end
	}
	return parts
}

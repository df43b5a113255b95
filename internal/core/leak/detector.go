// Package leak finds catalog entity values left as literal text in a
// template instead of being replaced by a {LABEL} placeholder.
package leak

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/OmkarTuptewar/template-generator/internal/core/model"
)

// MinValueLength is the shortest catalog value (in runes) considered.
const MinValueLength = 2

var placeholderRe = regexp.MustCompile(`\{[A-Z_]+\}`)

// Blocklist reports generic terms that are never treated as entity values.
type Blocklist interface {
	Blocked(label, value string) bool
}

type candidate struct {
	label string
	value string
	lower string
	runes int
}

// Find returns the catalog values that occur as whole words in the
// template's literal (non-placeholder) text. Longer values are matched
// first and consume their span, so a phrase is reported once and its
// shorter sub-values are not. Each value is reported at most once; when a
// value is listed under several labels the first label in catalog order
// wins.
func Find(template string, ref model.Catalog, blocked Blocklist) []model.LeakedEntity {
	clean := strings.ToLower(placeholderRe.ReplaceAllString(template, " "))
	if strings.TrimSpace(clean) == "" {
		return nil
	}

	cands := candidates(ref, blocked)
	var leaked []model.LeakedEntity
	seen := make(map[string]struct{})
	for _, c := range cands {
		if _, ok := seen[c.lower]; ok {
			continue
		}
		start, end, ok := findWord(clean, c.lower)
		if !ok {
			continue
		}
		leaked = append(leaked, model.LeakedEntity{Label: c.label, Value: c.value})
		seen[c.lower] = struct{}{}
		clean = clean[:start] + " " + clean[end:]
	}
	return leaked
}

func candidates(ref model.Catalog, blocked Blocklist) []candidate {
	var out []candidate
	for _, label := range ref.Labels() {
		for _, v := range ref.Values[label] {
			v = strings.TrimSpace(v)
			n := utf8.RuneCountInString(v)
			if n < MinValueLength {
				continue
			}
			if blocked != nil && blocked.Blocked(label, v) {
				continue
			}
			out = append(out, candidate{label: label, value: v, lower: strings.ToLower(v), runes: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].runes > out[j].runes })
	return out
}

// findWord returns the first occurrence of needle in text that sits between
// two word boundaries, with the same boundary rule as regexp \b: the
// characters on either side of the boundary differ in being word
// characters.
func findWord(text, needle string) (int, int, bool) {
	if needle == "" {
		return 0, 0, false
	}
	first, _ := utf8.DecodeRuneInString(needle)
	last, _ := utf8.DecodeLastRuneInString(needle)
	for from := 0; from <= len(text)-len(needle); {
		i := strings.Index(text[from:], needle)
		if i < 0 {
			return 0, 0, false
		}
		start := from + i
		end := start + len(needle)
		if boundaryBefore(text, start, first) && boundaryAfter(text, end, last) {
			return start, end, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return 0, 0, false
}

func boundaryBefore(text string, pos int, next rune) bool {
	prevWord := false
	if pos > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:pos])
		prevWord = isWord(r)
	}
	return prevWord != isWord(next)
}

func boundaryAfter(text string, pos int, prev rune) bool {
	nextWord := false
	if pos < len(text) {
		r, _ := utf8.DecodeRuneInString(text[pos:])
		nextWord = isWord(r)
	}
	return isWord(prev) != nextWord
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

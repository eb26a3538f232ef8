package mappack

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// PoolEntry is one map of a mappool as submitted by a caller.
type PoolEntry struct {
	URL  string `json:"url"`
	Slot string `json:"slot"`
}

// NormalizedEntry is a PoolEntry with both fields trimmed and the slot
// upper-cased.
type NormalizedEntry struct {
	URL  string `json:"url"`
	Slot string `json:"slot"`
}

// Normalize canonicalizes a pool so that equal pools hash equally.
//
// Both fields are trimmed of Unicode white space and the byte order mark, and
// slots are upper-cased with full case mappings ("ß" becomes "SS"). The result is sorted by
// slot using root-locale collation; ties fall back to the byte order of the
// slot and then of the URL, so the order does not depend on input order.
// Duplicates are kept.
func Normalize(entries []PoolEntry) []NormalizedEntry {
	upper := cases.Upper(language.Und)
	out := make([]NormalizedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, NormalizedEntry{
			URL:  trim(e.URL),
			Slot: upper.String(trim(e.Slot)),
		})
	}

	// Collators keep internal buffers and are not safe for concurrent use.
	col := collate.New(language.Und)
	slices.SortFunc(out, func(a, b NormalizedEntry) int {
		if c := col.CompareString(a.Slot, b.Slot); c != 0 {
			return c
		}
		if c := strings.Compare(a.Slot, b.Slot); c != 0 {
			return c
		}
		return strings.Compare(a.URL, b.URL)
	})
	return out
}

// trim removes leading and trailing white space as ECMAScript defines it:
// Unicode White_Space without NEL (U+0085), plus the byte order mark.
func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == '\uFEFF' || (r != '\u0085' && unicode.IsSpace(r))
	})
}

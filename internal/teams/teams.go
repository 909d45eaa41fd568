package teams

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Resolver maps source-specific team name spellings to one reference spelling.
// Matching is tiered: exact alias lookup, then normalized-form lookup, then a
// controlled prefix match. Names that survive all three tiers unresolved are
// passed through verbatim so the caller can flag them for manual mapping; the
// resolver never guesses across two real programs.
type Resolver struct {
	exact      map[string]string // source spelling -> reference spelling
	normalized map[string]string // normalized form -> reference spelling
	reference  []string          // reference spellings, for prefix matching
}

// prefixExclusions are suffix tokens that distinguish separate programs.
// "Ohio" must never prefix-match "Ohio State", nor "Texas" match "Texas A&M".
var prefixExclusions = []string{"state", "a m", "am", "tech", "southern", "international", "oh", "fl"}

// minPrefixLen guards the prefix tier against trivially short matches.
const minPrefixLen = 4

// defaultAliases maps known source spellings to the reference spelling used in
// canonical tables. Keys are spellings actually observed in the feeds.
var defaultAliases = map[string]string{
	"Ole Miss":              "Mississippi",
	"Pitt":                  "Pittsburgh",
	"USC":                   "Southern California",
	"UConn":                 "Connecticut",
	"UMass":                 "Massachusetts",
	"Central Florida":       "UCF",
	"App State":             "Appalachian State",
	"Hawai'i":               "Hawaii",
	"San José State":        "San Jose State",
	"Louisiana Monroe":      "UL Monroe",
	"Louisiana-Monroe":      "UL Monroe",
	"Southern Mississippi":  "Southern Miss",
	"Florida International": "FIU",
	"Miami (Ohio)":          "Miami (OH)",
	"Miami Florida":         "Miami (FL)",
	"NC State":              "North Carolina State",
}

// New creates a resolver seeded with the default alias table.
func New() *Resolver {
	return NewWithAliases(defaultAliases)
}

// NewWithAliases creates a resolver from an explicit alias table. Reference
// spellings (alias values) always canonicalize to themselves.
func NewWithAliases(aliases map[string]string) *Resolver {
	r := &Resolver{
		exact:      make(map[string]string),
		normalized: make(map[string]string),
	}
	seen := make(map[string]bool)
	for alias, ref := range aliases {
		r.exact[alias] = ref
		r.normalized[Normalize(alias)] = ref
		if !seen[ref] {
			seen[ref] = true
			r.exact[ref] = ref
			r.normalized[Normalize(ref)] = ref
			r.reference = append(r.reference, ref)
		}
	}
	// Stable prefix-tier scan order regardless of map iteration.
	sort.Strings(r.reference)
	return r
}

// Canonical resolves a source spelling to the reference spelling. The second
// return value reports whether the name matched a known team; on false the
// input is returned unchanged.
func (r *Resolver) Canonical(name string) (string, bool) {
	if ref, ok := r.exact[name]; ok {
		return ref, true
	}

	n := Normalize(name)
	if ref, ok := r.normalized[n]; ok {
		return ref, true
	}

	if len(n) >= minPrefixLen {
		for _, ref := range r.reference {
			if prefixMatch(n, Normalize(ref)) {
				return ref, true
			}
		}
	}

	return name, false
}

// prefixMatch reports whether the shorter of two normalized names is a
// word-boundary prefix of the longer, excluding continuations that denote a
// different program.
func prefixMatch(a, b string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < minPrefixLen {
		return false
	}
	if !strings.HasPrefix(long, short+" ") {
		return false
	}

	rest := long[len(short)+1:]
	for _, excl := range prefixExclusions {
		if rest == excl || strings.HasPrefix(rest, excl+" ") {
			return false
		}
	}
	return true
}

// Normalize folds a team name to a comparison form: diacritics stripped,
// lowercased, punctuation collapsed to single spaces.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

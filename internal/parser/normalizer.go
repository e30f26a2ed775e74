package parser

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const edgeCutset = " \t,;:.|*_-–—"

// Normalizer cleans raw commodity name candidates.
type Normalizer struct {
	cfg      NormalizerConfig
	stoplist []string
	synonyms []Synonym
}

// NewNormalizer builds a Normalizer. Stoplist and synonym matches are case-insensitive.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	n := &Normalizer{cfg: cfg}
	for _, stop := range cfg.Stoplist {
		if stop = strings.ToLower(strings.TrimSpace(stop)); stop != "" {
			n.stoplist = append(n.stoplist, stop)
		}
	}
	for _, syn := range cfg.Synonyms {
		match := strings.ToLower(strings.TrimSpace(syn.Match))
		if match == "" || syn.Canonical == "" {
			continue
		}
		n.synonyms = append(n.synonyms, Synonym{Match: match, Canonical: syn.Canonical})
	}
	return n
}

// Normalize returns the cleaned name, or false when the candidate is unusable.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	// PDF text often carries ligatures and full-width forms.
	name := norm.NFKC.String(raw)
	name = strings.Join(strings.Fields(name), " ")
	name = trimEdges(name)

	if utf8.RuneCountInString(name) < n.cfg.MinNameLength {
		return "", false
	}

	lower := strings.ToLower(name)
	for _, stop := range n.stoplist {
		if strings.HasPrefix(lower, stop) {
			return "", false
		}
	}

	name = n.stripSuffixes(name)

	lower = strings.ToLower(name)
	for _, syn := range n.synonyms {
		if strings.Contains(lower, syn.Match) {
			return syn.Canonical, true
		}
	}
	return name, true
}

func (n *Normalizer) stripSuffixes(name string) string {
	for changed := true; changed; {
		changed = false
		for _, suffix := range n.cfg.Suffixes {
			cut, ok := cutDescriptor(name, suffix)
			if !ok || utf8.RuneCountInString(cut) < n.cfg.MinNameLength {
				continue
			}
			name = cut
			changed = true
		}
	}
	return name
}

// cutDescriptor removes a trailing descriptor written bare ("Tomato Local"),
// after a comma ("Tomato, local") or in parentheses ("Tomato (Local)").
func cutDescriptor(name, suffix string) (string, bool) {
	if suffix == "" {
		return name, false
	}
	if paren := "(" + suffix + ")"; hasFoldSuffix(name, paren) {
		return trimEdges(name[:len(name)-len(paren)]), true
	}
	if !hasFoldSuffix(name, suffix) || len(name) == len(suffix) {
		return name, false
	}
	rest := name[:len(name)-len(suffix)]
	switch rest[len(rest)-1] {
	case ' ', ',', '-':
		return trimEdges(rest), true
	}
	return name, false
}

func hasFoldSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func trimEdges(s string) string {
	return strings.Trim(s, edgeCutset)
}

// Package parser recovers commodity prices from the plain text of daily
// price index reports. Extraction is best effort: each line is classified
// independently by an ordered cascade of rules, and anything that does not
// look like a "name ... price" row is dropped.
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Classifier turns report lines into a commodity → price mapping.
type Classifier struct {
	cfg        Config
	markers    []string
	normalizer *Normalizer
}

// New validates cfg and builds a Classifier.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{cfg: cfg, normalizer: NewNormalizer(cfg.Normalizer)}
	for _, m := range cfg.Markers {
		if m = strings.ToLower(m); m != "" {
			c.markers = append(c.markers, m)
		}
	}
	return c, nil
}

// MustNew is New for known-good configurations such as the presets.
func MustNew(cfg Config) *Classifier {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Config returns the active configuration.
func (c *Classifier) Config() Config { return c.cfg }

// ParseText splits text into lines and classifies them.
func (c *Classifier) ParseText(text string) map[string]decimal.Decimal {
	return c.Classify(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// Classify extracts prices from lines. A later line with the same normalized
// name overwrites the earlier price.
func (c *Classifier) Classify(lines []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, line := range lines {
		if name, price, ok := c.ClassifyLine(line); ok {
			out[name] = price
		}
	}
	return out
}

// ClassifyLine reports the normalized name and price of a data row, or false
// for noise.
func (c *Classifier) ClassifyLine(line string) (string, decimal.Decimal, bool) {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) < c.cfg.MinLineLength {
		return "", decimal.Decimal{}, false
	}

	lower := strings.ToLower(line)
	for _, marker := range c.markers {
		if strings.Contains(lower, marker) {
			return "", decimal.Decimal{}, false
		}
	}

	if isSectionHeading(line) {
		return "", decimal.Decimal{}, false
	}

	price, start, ok := c.trailingPrice(line)
	if !ok || !c.cfg.Range.Contains(price) {
		return "", decimal.Decimal{}, false
	}

	name, ok := c.normalizer.Normalize(line[:start])
	if !ok {
		return "", decimal.Decimal{}, false
	}
	return name, price, true
}

// trailingPrice applies the price patterns in order of preference and
// returns the first match with the byte offset where the number starts.
func (c *Classifier) trailingPrice(line string) (decimal.Decimal, int, bool) {
	for _, re := range c.cfg.PricePatterns {
		loc := re.FindStringSubmatchIndex(line)
		if loc == nil || loc[2] < 0 {
			continue
		}
		raw := strings.ReplaceAll(line[loc[2]:loc[3]], ",", "")
		price, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		return price, loc[2], true
	}
	return decimal.Decimal{}, 0, false
}

// isSectionHeading matches lines that have letters, none of them lower-case,
// and no digits at all.
func isSectionHeading(line string) bool {
	hasLetter := false
	for _, r := range line {
		switch {
		case unicode.IsDigit(r), unicode.IsLower(r):
			return false
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	return hasLetter
}

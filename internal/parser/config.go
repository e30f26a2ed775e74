package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// PresetConservative accepts only two-decimal prices in a narrow range.
	PresetConservative = "conservative"
	// PresetPermissive trades precision for recall on loosely formatted reports.
	PresetPermissive = "permissive"
)

// The price group is anchored at line end and must not be glued to a
// preceding digit, dot or comma, otherwise "52.005" would read as 2.005.
var (
	twoDecimalPattern        = regexp.MustCompile(`(?:^|[^\d.,])(\d+\.\d{2})\s*$`)
	groupedTwoDecimalPattern = regexp.MustCompile(`(?:^|[^\d.,])(\d{1,3}(?:,\d{3})+\.\d{2}|\d+\.\d{2})\s*$`)
	oneDecimalPattern        = regexp.MustCompile(`(?:^|[^\d.,])(\d+\.\d)\s*$`)
	integerPattern           = regexp.MustCompile(`(?:^|[^\d.,])(\d+)\s*$`)
)

// Range bounds accepted prices.
type Range struct {
	Min          decimal.Decimal
	Max          decimal.Decimal
	MinInclusive bool
	MaxInclusive bool
}

// Contains reports whether p lies within the range.
func (r Range) Contains(p decimal.Decimal) bool {
	if r.MinInclusive {
		if p.LessThan(r.Min) {
			return false
		}
	} else if p.LessThanOrEqual(r.Min) {
		return false
	}
	if r.MaxInclusive {
		return p.LessThanOrEqual(r.Max)
	}
	return p.LessThan(r.Max)
}

func (r Range) String() string {
	lo, hi := "(", ")"
	if r.MinInclusive {
		lo = "["
	}
	if r.MaxInclusive {
		hi = "]"
	}
	return fmt.Sprintf("%s%s, %s%s", lo, r.Min.String(), r.Max.String(), hi)
}

// Synonym maps any name containing Match to a canonical display name.
type Synonym struct {
	Match     string
	Canonical string
}

// NormalizerConfig drives commodity name cleanup.
type NormalizerConfig struct {
	MinNameLength int
	Stoplist      []string
	Suffixes      []string
	Synonyms      []Synonym
}

// Config parameterises the line classifier.
type Config struct {
	Name          string
	MinLineLength int
	Markers       []string
	PricePatterns []*regexp.Regexp
	Range         Range
	Normalizer    NormalizerConfig
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.MinLineLength <= 0 {
		return fmt.Errorf("parser %q: min line length must be greater than zero", c.Name)
	}
	if len(c.PricePatterns) == 0 {
		return fmt.Errorf("parser %q: at least one price pattern required", c.Name)
	}
	for _, re := range c.PricePatterns {
		if re == nil || re.NumSubexp() < 1 {
			return fmt.Errorf("parser %q: price pattern must capture the price", c.Name)
		}
	}
	if !c.Range.Max.GreaterThan(c.Range.Min) {
		return fmt.Errorf("parser %q: price range %s is empty", c.Name, c.Range)
	}
	if c.Normalizer.MinNameLength <= 0 {
		return fmt.Errorf("parser %q: min name length must be greater than zero", c.Name)
	}
	return nil
}

var defaultMarkers = []string{
	"page ",
	"department",
	"daily price",
	"price index",
	"price monitoring",
	"commodity",
	"specification",
	"n/a",
}

var defaultStoplist = []string{
	"page",
	"prevailing",
	"retail price",
	"department",
	"agriculture",
	"table",
	"source",
	"prepared",
	"national capital",
}

var descriptorSuffixes = []string{
	"local",
	"imported",
	"fresh",
	"frozen",
	"sliced",
	"whole",
	"extra large",
	"large",
	"medium",
	"small",
}

// Ordered: the first entry contained in a name wins, so specific entries go first.
var canonicalNames = []Synonym{
	{Match: "well-milled", Canonical: "Well Milled Rice"},
	{Match: "well milled", Canonical: "Well Milled Rice"},
	{Match: "regular-milled", Canonical: "Regular Milled Rice"},
	{Match: "regular milled", Canonical: "Regular Milled Rice"},
	{Match: "premium rice", Canonical: "Premium Rice"},
	{Match: "special rice", Canonical: "Special Rice"},
	{Match: "glutinous", Canonical: "Glutinous Rice"},
	{Match: "round scad", Canonical: "Galunggong"},
	{Match: "galunggong", Canonical: "Galunggong"},
	{Match: "milkfish", Canonical: "Bangus"},
	{Match: "bangus", Canonical: "Bangus"},
	{Match: "tilapia", Canonical: "Tilapia"},
	{Match: "liempo", Canonical: "Pork Liempo"},
	{Match: "kasim", Canonical: "Pork Kasim"},
	{Match: "pigue", Canonical: "Pork Pigue"},
	{Match: "lpg", Canonical: "LPG"},
}

// Conservative mirrors the strict cascade: two-decimal prices only,
// 0 < price < 10,000, names of at least three characters.
func Conservative() Config {
	return Config{
		Name:          PresetConservative,
		MinLineLength: 5,
		Markers:       append([]string(nil), defaultMarkers...),
		PricePatterns: []*regexp.Regexp{twoDecimalPattern},
		Range: Range{
			Min: decimal.Zero,
			Max: decimal.NewFromInt(10_000),
		},
		Normalizer: NormalizerConfig{
			MinNameLength: 3,
			Stoplist:      append([]string(nil), defaultStoplist...),
		},
	}
}

// Permissive accepts one-decimal and integer prices, thousands separators,
// 0.5 <= price <= 50,000, and folds descriptor suffixes and known synonyms.
func Permissive() Config {
	return Config{
		Name:          PresetPermissive,
		MinLineLength: 3,
		Markers:       append([]string(nil), defaultMarkers...),
		PricePatterns: []*regexp.Regexp{groupedTwoDecimalPattern, oneDecimalPattern, integerPattern},
		Range: Range{
			Min:          decimal.RequireFromString("0.5"),
			Max:          decimal.NewFromInt(50_000),
			MinInclusive: true,
			MaxInclusive: true,
		},
		Normalizer: NormalizerConfig{
			MinNameLength: 2,
			Stoplist:      append([]string(nil), defaultStoplist...),
			Suffixes:      append([]string(nil), descriptorSuffixes...),
			Synonyms:      append([]Synonym(nil), canonicalNames...),
		},
	}
}

var presets = map[string]func() Config{
	PresetConservative: Conservative,
	PresetPermissive:   Permissive,
}

// Preset returns a named configuration.
func Preset(name string) (Config, error) {
	build, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("unknown parser preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return build(), nil
}

// PresetNames lists the available presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

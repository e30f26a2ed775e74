package parser

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `DEPARTMENT OF AGRICULTURE
DAILY PRICE INDEX
National Capital Region
COMMODITY SPECIFICATION PREVAILING RETAIL PRICE
IMPORTED COMMERCIAL RICE
Well Milled Rice    52.00
Regular Milled Rice    48.50
LOCAL COMMERCIAL RICE
Premium Rice, 5% broken    57.25
Tomato    n/a
Pork Liempo    310.00
Page 1 of 3
Chicken (Whole) Dressed    165.50
Pork Liempo    315.00
`

func TestClassifyConservativeReport(t *testing.T) {
	c := MustNew(Conservative())

	got := c.ParseText(sampleReport)

	want := map[string]string{
		"Well Milled Rice":        "52",
		"Regular Milled Rice":     "48.5",
		"Premium Rice, 5% broken": "57.25",
		"Pork Liempo":             "315",
		"Chicken (Whole) Dressed": "165.5",
	}
	require.Len(t, got, len(want))
	for name, price := range want {
		p, ok := got[name]
		require.True(t, ok, "missing %q in %v", name, got)
		assert.True(t, p.Equal(decimal.RequireFromString(price)), "%s: got %s want %s", name, p, price)
	}
}

func TestFormattedRowYieldsPair(t *testing.T) {
	names := []string{"Tomato", "Carrot", "Chicken Breast", "Cabbage Scorpio", "Sayote", "Pechay Baguio", "Red Onion"}
	rng := rand.New(rand.NewSource(7))

	for _, cfg := range []Config{Conservative(), Permissive()} {
		c := MustNew(cfg)
		norm := NewNormalizer(cfg.Normalizer)
		for i := 0; i < 500; i++ {
			name := names[rng.Intn(len(names))]
			// 1..999999 cents covers (0, 10000) for the conservative range.
			cents := int64(rng.Intn(999_999) + 1)
			price := decimal.New(cents, -2)
			if !cfg.Range.Contains(price) {
				continue
			}

			line := fmt.Sprintf("%s    %s", name, price.StringFixed(2))
			gotName, gotPrice, ok := c.ClassifyLine(line)
			require.True(t, ok, "%s: %q not classified", cfg.Name, line)

			wantName, _ := norm.Normalize(name)
			assert.Equal(t, wantName, gotName)
			assert.True(t, gotPrice.Equal(price), "%s: price %s want %s", cfg.Name, gotPrice, price)
		}
	}
}

func TestUpperCaseLinesWithoutDigitsNeverClassify(t *testing.T) {
	lines := []string{
		"IMPORTED COMMERCIAL RICE",
		"LIVESTOCK AND POULTRY PRODUCTS",
		"FISH",
		"HIGHLAND VEGETABLES",
		"SPICES – GARLIC, GINGER",
	}
	for _, cfg := range []Config{Conservative(), Permissive()} {
		c := MustNew(cfg)
		for _, line := range lines {
			_, _, ok := c.ClassifyLine(line)
			assert.False(t, ok, "%s: %q", cfg.Name, line)
		}
	}
}

func TestShortLinesNeverClassify(t *testing.T) {
	cases := map[string][]string{
		PresetConservative: {"", "1.00", "A1.5", "ab 9"},
		PresetPermissive:   {"", "9", "a1"},
	}
	for preset, lines := range cases {
		cfg, err := Preset(preset)
		require.NoError(t, err)
		c := MustNew(cfg)
		for _, line := range lines {
			require.Less(t, len([]rune(strings.TrimSpace(line))), cfg.MinLineLength)
			_, _, ok := c.ClassifyLine(line)
			assert.False(t, ok, "%s: %q", preset, line)
		}
	}
}

func TestMarkersAreCaseInsensitiveSubstrings(t *testing.T) {
	c := MustNew(Conservative())
	lines := []string{
		"Prepared by the Department of Agriculture 12.00",
		"Bantay Presyo daily price index 25.00",
		"page 2 of 4    10.00",
		"Calamansi N/A 45.00",
	}
	for _, line := range lines {
		_, _, ok := c.ClassifyLine(line)
		assert.False(t, ok, line)
	}
}

func TestPlausibilityRejection(t *testing.T) {
	conservative := MustNew(Conservative())
	_, _, ok := conservative.ClassifyLine("Total Volume    150000.00")
	assert.False(t, ok)
	_, _, ok = conservative.ClassifyLine("Tomato    0.00")
	assert.False(t, ok)
	_, _, ok = conservative.ClassifyLine("Tomato    10000.00")
	assert.False(t, ok)

	permissive := MustNew(Permissive())
	_, price, ok := permissive.ClassifyLine("Beef Brisket    50000")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(50_000)))
	_, _, ok = permissive.ClassifyLine("Beef Brisket    50000.01")
	assert.False(t, ok)
	_, _, ok = permissive.ClassifyLine("Salt iodized 0.4")
	assert.False(t, ok)
}

func TestPatternPreference(t *testing.T) {
	conservative := MustNew(Conservative())
	_, _, ok := conservative.ClassifyLine("Egg Medium    7.5")
	assert.False(t, ok, "conservative requires two decimals")
	_, _, ok = conservative.ClassifyLine("Garlic    185")
	assert.False(t, ok)
	_, _, ok = conservative.ClassifyLine("Rice bag    1,250.00")
	assert.False(t, ok, "grouped thousands are not split into 250.00")

	permissive := MustNew(Permissive())
	name, price, ok := permissive.ClassifyLine("Egg Medium    7.5")
	require.True(t, ok)
	assert.Equal(t, "Egg", name)
	assert.True(t, price.Equal(decimal.RequireFromString("7.5")))

	name, price, ok = permissive.ClassifyLine("Garlic    185")
	require.True(t, ok)
	assert.Equal(t, "Garlic", name)
	assert.True(t, price.Equal(decimal.NewFromInt(185)))

	name, price, ok = permissive.ClassifyLine("Beef Tenderloin    1,250.00")
	require.True(t, ok)
	assert.Equal(t, "Beef Tenderloin", name)
	assert.True(t, price.Equal(decimal.NewFromInt(1250)))
}

func TestNumberGluedToDigitsIsNotAPrice(t *testing.T) {
	c := MustNew(Permissive())
	_, _, ok := c.ClassifyLine("Reference 52.005")
	assert.False(t, ok)
}

func TestLastWriteWins(t *testing.T) {
	c := MustNew(Conservative())
	got := c.Classify([]string{"Tomato    90.00", "Carrot    80.00", "Tomato    95.00"})
	require.Len(t, got, 2)
	assert.True(t, got["Tomato"].Equal(decimal.NewFromInt(95)))
}

func TestClassifyIsIdempotent(t *testing.T) {
	for _, cfg := range []Config{Conservative(), Permissive()} {
		c := MustNew(cfg)
		first := c.ParseText(sampleReport)
		second := c.ParseText(sampleReport)
		require.Equal(t, len(first), len(second))
		for name, price := range first {
			assert.True(t, price.Equal(second[name]), name)
		}
	}
}

func TestEmptyDocumentYieldsEmptyMapping(t *testing.T) {
	c := MustNew(Conservative())
	got := c.ParseText("")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPermissiveFoldsSynonymsAndSuffixes(t *testing.T) {
	c := MustNew(Permissive())
	got := c.ParseText(strings.Join([]string{
		"Well-milled rice (Imported)    52.00",
		"Red Onion (Local)    118.00",
		"Red Onion, imported    120.00",
		"Bangus, medium    158.00",
	}, "\n"))

	assert.True(t, got["Well Milled Rice"].Equal(decimal.NewFromInt(52)))
	assert.True(t, got["Red Onion"].Equal(decimal.NewFromInt(120)))
	assert.True(t, got["Bangus"].Equal(decimal.NewFromInt(158)))
	assert.Len(t, got, 3)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := Conservative()
	cfg.PricePatterns = nil
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = Conservative()
	cfg.Range.Max = cfg.Range.Min
	_, err = New(cfg)
	assert.Error(t, err)

	_, err = Preset("greedy")
	assert.Error(t, err)
}

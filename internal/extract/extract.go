// Package extract converts raw report bytes into plain text lines.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrMalformed marks input that could not be converted to text.
var ErrMalformed = errors.New("extract: malformed document")

// Extractor converts raw document bytes into text. Implementations must be
// deterministic and must not panic on bad input.
type Extractor interface {
	Extract(raw []byte) (string, error)
}

// PDF extracts the text layer of a PDF, page by page.
type PDF struct{}

// Extract returns the per-page text joined by line breaks in page order.
// Rows are rebuilt from glyph positions. Any reader failure, including
// a panic inside the reader, is reported as ErrMalformed with empty text.
func (PDF) Extract(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrMalformed)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if pageText := joinGlyphs(page.Content().Text); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n"), nil
}

const (
	// Glyphs whose baselines differ by less than this share of the font size
	// belong to the same row.
	rowTolerance = 0.3
	// A horizontal gap wider than this share of the font size separates words.
	wordGap = 0.2
)

type glyph struct {
	pdf.Text
	seq int
}

// joinGlyphs rebuilds text rows from positioned glyphs: rows top-down,
// glyphs left to right, a space wherever two glyphs are visibly apart.
func joinGlyphs(texts []pdf.Text) string {
	glyphs := make([]glyph, 0, len(texts))
	for i, t := range texts {
		if t.S == "" {
			continue
		}
		glyphs = append(glyphs, glyph{Text: t, seq: i})
	}
	if len(glyphs) == 0 {
		return ""
	}

	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].Y > glyphs[j].Y })

	var rows [][]glyph
	for _, g := range glyphs {
		if n := len(rows); n > 0 {
			anchor := rows[n-1][0]
			if anchor.Y-g.Y <= tolerance(anchor.FontSize, g.FontSize, rowTolerance) {
				rows[n-1] = append(rows[n-1], g)
				continue
			}
		}
		rows = append(rows, []glyph{g})
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if line := joinRow(row); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func joinRow(row []glyph) string {
	sort.Slice(row, func(i, j int) bool {
		if row[i].X != row[j].X {
			return row[i].X < row[j].X
		}
		return row[i].seq < row[j].seq
	})

	var b strings.Builder
	for i, g := range row {
		if i > 0 {
			prev := row[i-1]
			if g.X-(prev.X+prev.W) > tolerance(prev.FontSize, g.FontSize, wordGap) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tolerance(a, b, share float64) float64 {
	size := max(a, b)
	if size <= 0 {
		size = 10
	}
	return size * share
}

// Plain treats the input as UTF-8 text, for reports saved as .txt.
type Plain struct{}

// Extract returns the input unchanged when it is valid UTF-8.
func (Plain) Extract(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	return string(raw), nil
}

// Lines splits text into lines, accepting both \n and \r\n.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

var (
	_ Extractor = PDF{}
	_ Extractor = Plain{}
)

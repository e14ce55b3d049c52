// Package pdf renders a QuestionSet as a printable exam.
package pdf

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/pavelanni/smartexam/internal/model"
)

// Options controls page text. Zero values fall back to the English defaults.
type Options struct {
	Header           string
	CorrectLabel     string
	ExplanationLabel string
}

func (o Options) withDefaults() Options {
	if o.Header == "" {
		o.Header = "Generated Exam"
	}
	if o.CorrectLabel == "" {
		o.CorrectLabel = "Correct answer"
	}
	if o.ExplanationLabel == "" {
		o.ExplanationLabel = "Explanation"
	}
	return o
}

const (
	fontFamily = "Arial"
	fontSize   = 12
	lineHeight = 10
)

// Write renders questions in order to w. Every page carries the header; each question
// gets a bold title followed by its choices, the correct answer and the explanation.
func Write(w io.Writer, questions model.QuestionSet, opts Options) error {
	opts = opts.withDefaults()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(ToLatin1(opts.Header), false)
	doc.SetHeaderFunc(func() {
		doc.SetFont(fontFamily, "B", fontSize)
		doc.CellFormat(0, lineHeight, ToLatin1(opts.Header), "", 1, "C", false, 0, "")
	})
	doc.AddPage()

	title := func(s string) {
		doc.SetFont(fontFamily, "B", fontSize)
		doc.MultiCell(0, lineHeight, ToLatin1(s), "", "", false)
		doc.Ln(5)
	}
	body := func(s string) {
		doc.SetFont(fontFamily, "", fontSize)
		doc.MultiCell(0, lineHeight, ToLatin1(s), "", "", false)
		doc.Ln(-1)
	}

	for i, q := range questions {
		title(fmt.Sprintf("Q%d: %s", i+1, q.Prompt))
		body(strings.Join(q.Choices, "\n"))
		body(fmt.Sprintf("%s: %s", opts.CorrectLabel, q.CorrectAnswer))
		body(fmt.Sprintf("%s: %s", opts.ExplanationLabel, q.Explanation))
	}

	if err := doc.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

var punctuation = strings.NewReplacer(
	"\u2014", "-",
	"\u2013", "-",
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2026", "...",
)

// ToLatin1 returns s encoded as ISO-8859-1 bytes, the encoding the core PDF fonts
// expect. Typographic punctuation is mapped to ASCII first and any rune still outside
// Latin-1 becomes '?'.
func ToLatin1(s string) string {
	s = punctuation.Replace(s)
	enc := charmap.ISO8859_1
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		c, ok := enc.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}

package chunk

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		maxSize int
		want    []string
	}{
		{"empty", "", 10, nil},
		{"one fragment per chunk", "A. B. C.", 3, []string{"A. ", "B. ", "C. "}},
		{"all fit", "A. B. C.", 100, []string{"A. B. C. "}},
		{"no trailing period", "Alpha. Beta", 100, []string{"Alpha. Beta. "}},
		{"trailing delimiter", "Alpha. Beta. ", 100, []string{"Alpha. Beta. "}},
		{"oversized fragment kept whole", "Short. This sentence is far too long. End.", 10,
			[]string{"Short. ", "This sentence is far too long. ", "End. "}},
		{"greedy pack", "aa. bb. cc. dd.", 7, []string{"aa. bb. ", "cc. dd. "}},
		{"non-positive max", "A. B.", 0, []string{"A. ", "B. "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text, tt.maxSize)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q, %d) = %q, want %q", tt.text, tt.maxSize, got, tt.want)
			}
		})
	}
}

func TestSplitBound(t *testing.T) {
	text := strings.Repeat("The cell membrane regulates transport. ", 40) +
		"An unusually long sentence about mitochondria that keeps going well beyond any small limit. " +
		strings.Repeat("Ribosomes build proteins. ", 25)

	longest := 0
	for _, f := range Fragments(text) {
		if n := utf8.RuneCountInString(f); n > longest {
			longest = n
		}
	}

	for _, maxSize := range []int{1, 20, 50, 200, 3000} {
		chunks := Split(text, maxSize)
		for i, c := range chunks {
			if n := utf8.RuneCountInString(c); n > maxSize+longest+len(Delimiter) {
				t.Errorf("maxSize=%d chunk %d has length %d", maxSize, i, n)
			}
		}

		// Re-splitting the chunks must give back the same sentence sequence.
		var rejoined []string
		for _, c := range chunks {
			rejoined = append(rejoined, Fragments(c)...)
		}
		if !reflect.DeepEqual(rejoined, Fragments(text)) {
			t.Errorf("maxSize=%d: sentence sequence not preserved", maxSize)
		}
	}
}

func TestSplitCountsRunes(t *testing.T) {
	// Five two-byte runes per fragment: a byte count would force a split here.
	got := Split("ééééé. ééééé.", 12)
	want := []string{"ééééé. ééééé. "}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

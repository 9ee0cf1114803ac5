package sortname

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		language string
		expected string
	}{
		{"english definite article", "The Expanse", "en", "Expanse"},
		{"english indefinite article", "A Quiet Place", "en", "Quiet Place"},
		{"no mid-word strip", "Theremin", "en", "Theremin"},
		{"french elided straight apostrophe", "L'Étranger", "fr", "Étranger"},
		{"french elided typographic apostrophe", "D’Artagnan", "fr", "Artagnan"},
		{"french word article", "Les Misérables", "fr", "Misérables"},
		{"unknown language keeps article", "The Expanse", "xx", "The Expanse"},
		{"empty language keeps article", "The Expanse", "", "The Expanse"},
		{"leading symbols stripped", "...And Justice for All", "en", "And Justice for All"},
		{"article after symbols", "\"The Office", "en", "Office"},
		{"region subtag", "The Crown", "en-US", "Crown"},
		{"only one article removed", "The The", "en", "The"},
		{"whitespace trimmed", "  The Wire  ", "en", "Wire"},
		{"empty title", "", "en", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Generate(tt.title, tt.language))
		})
	}
}

func TestGenerateIsIdempotentOnArticleFreeTitles(t *testing.T) {
	first := Generate("The Expanse", "en")
	assert.Equal(t, "Expanse", Generate(first, "en"))
}

func TestCompareNaturalOrder(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"Episode 2", "Episode 10", -1},
		{"Episode 10", "Episode 2", 1},
		{"Season 02", "Season 2", -1}, // equal numerically, byte tie-break
		{"abc", "ABD", -1},
		{"ABC", "abc", -1},
		{"Track 9", "Track 09x", -1},
		{"", "a", -1},
		{"a", "", 1},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		got := Compare(tt.a, tt.b)
		switch tt.expected {
		case 0:
			assert.Zero(t, got, "%q vs %q", tt.a, tt.b)
		case -1:
			assert.Negative(t, got, "%q vs %q", tt.a, tt.b)
		case 1:
			assert.Positive(t, got, "%q vs %q", tt.a, tt.b)
		}
	}
}

func TestCompareSortStability(t *testing.T) {
	xs := []string{"Episode 10", "Episode 2", "episode 1", "Episode 21", "Episode 3"}
	sortOnce := func(in []string) []string {
		out := append([]string(nil), in...)
		sort.Slice(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
		return out
	}
	once := sortOnce(xs)
	assert.Equal(t, []string{"episode 1", "Episode 2", "Episode 3", "Episode 10", "Episode 21"}, once)
	assert.Equal(t, once, sortOnce(once))
}

// Package sortname derives deterministic ordering keys from display titles
// and provides the natural-sort comparator installed as a database collation.
package sortname

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// wordArticles maps a language code to the leading articles removed from a
// title when deriving its sort name. Keys are lowercase base language codes.
var wordArticles = map[string][]string{
	"en": {"the", "a", "an"},
	"fr": {"le", "la", "les", "un", "une", "des"},
	"de": {"der", "die", "das", "ein", "eine"},
	"es": {"el", "la", "los", "las", "un", "una", "unos", "unas"},
	"it": {"il", "lo", "la", "i", "gli", "le", "un", "uno", "una"},
	"pt": {"o", "a", "os", "as", "um", "uma"},
	"nl": {"de", "het", "een"},
}

// elidedArticles are apostrophe-joined article prefixes, checked before word
// articles because they attach directly to the following word.
var elidedArticles = map[string][]string{
	"fr": {"l'", "d'"},
	"it": {"l'", "un'"},
}

// Generate derives the sort name for a title: NFC-normalize, strip leading
// symbols, remove at most one recognized article for the given language, and
// trim again. The language is a BCP-47-ish code; only the base subtag is
// considered. An unknown language removes no article.
func Generate(title, language string) string {
	s := norm.NFC.String(title)
	s = trimLeadingSymbols(s)

	lang := baseLang(language)

	if elided, ok := elidedArticles[lang]; ok {
		lower := strings.ToLower(normalizeApostrophes(s))
		for _, prefix := range elided {
			if strings.HasPrefix(lower, prefix) && len(s) > len(prefix) {
				return trimLeadingSymbols(cutPrefix(s, len(prefix)))
			}
		}
	}

	if articles, ok := wordArticles[lang]; ok {
		lower := strings.ToLower(s)
		for _, article := range articles {
			if strings.HasPrefix(lower, article+" ") {
				return trimLeadingSymbols(s[len(article)+1:])
			}
		}
	}

	return strings.TrimSpace(s)
}

func baseLang(language string) string {
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}

// normalizeApostrophes folds typographic apostrophes so elided-article
// matching works on both ' and ’.
func normalizeApostrophes(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '’' || r == 'ʼ' {
			return '\''
		}
		return r
	}, s)
}

// cutPrefix removes n bytes measured against the apostrophe-normalized form.
// Both apostrophe variants are one rune, but the typographic one is three
// bytes in UTF-8, so the cut is re-measured on the original string.
func cutPrefix(s string, normalizedLen int) string {
	runes := []rune(normalizeApostrophes(s))[:normalizedLen]
	byteLen := 0
	orig := []rune(s)
	for i := range runes {
		byteLen += len(string(orig[i]))
	}
	return s[byteLen:]
}

func trimLeadingSymbols(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Compare is a natural-sort comparator: runs of digits compare numerically,
// other runs compare case-insensitively. It is a total order; ties on the
// folded form fall back to a byte compare so distinct strings never compare
// equal to each other's neighbors inconsistently.
func Compare(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, ni := takeDigits(ra, i)
			nb, nj := takeDigits(rb, j)
			if c := compareNumeric(na, nb); c != 0 {
				return c
			}
			i, j = ni, nj
			continue
		}
		fa, fb := unicode.ToLower(ca), unicode.ToLower(cb)
		if fa != fb {
			if fa < fb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case i < len(ra):
		return 1
	case j < len(rb):
		return -1
	}
	return strings.Compare(a, b)
}

func takeDigits(rs []rune, i int) (string, int) {
	start := i
	for i < len(rs) && unicode.IsDigit(rs[i]) {
		i++
	}
	return string(rs[start:i]), i
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

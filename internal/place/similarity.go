package place

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Scorer rates how alike two cache keys are, in [0,1].
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b string) float64

// Score implements Scorer.
func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

// Similarity is the default Scorer: a token-sort ratio over diacritic-folded
// keys. When CountryWeight is positive and both keys have more than one
// segment, the final (country) segment is scored on its own and blended in
// with that weight.
type Similarity struct {
	CountryWeight float64
}

// Score implements Scorer.
func (s Similarity) Score(a, b string) float64 {
	w := s.CountryWeight
	if w <= 0 {
		return TokenSortRatio(a, b)
	}
	if w > 1 {
		w = 1
	}
	headA, countryA, okA := splitCountry(a)
	headB, countryB, okB := splitCountry(b)
	if !okA || !okB {
		return TokenSortRatio(a, b)
	}
	return (1-w)*TokenSortRatio(headA, headB) + w*TokenSortRatio(countryA, countryB)
}

func splitCountry(s string) (head, country string, ok bool) {
	i := strings.LastIndex(s, ",")
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// TokenSortRatio scores a and b after folding diacritics and case, replacing
// punctuation with spaces and sorting the words. Word order therefore does
// not matter: "paris, france" and "france paris" score 1.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

// Ratio is the normalized indel similarity 1 - indel(a,b)/(len(a)+len(b)),
// counted in runes. Two empty strings score 1.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(2*lcs(ra, rb)) / float64(total)
}

// Levenshtein returns the rune edit distance between a and b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// FoldDiacritics strips combining marks, turning "Zürich" into "Zurich".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func sortTokens(s string) string {
	s = cases.Fold().String(FoldDiacritics(s))
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(words)
	return strings.Join(words, " ")
}

// lcs is the length of the longest common subsequence.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

package native

import (
	"strings"
	"unicode"
)

// DedupOptions bounds what counts as the same utterance reported twice.
type DedupOptions struct {
	// MaxSuffixChars is the longest tail a prefix extension may add.
	MaxSuffixChars int
	// MaxLengthDelta is the largest relative length difference for the
	// word-overlap check.
	MaxLengthDelta float64
	MinWordOverlap float64
}

var DefaultDedupOptions = DedupOptions{
	MaxSuffixChars: 12,
	MaxLengthDelta: 0.2,
	MinWordOverlap: 0.6,
}

// IsNearDuplicate reports whether next repeats prev. Engines often re-send a
// final with trailing words appended or punctuation changed.
func IsNearDuplicate(prev, next string, opts DedupOptions) bool {
	a := normalize(prev)
	b := normalize(next)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if strings.HasPrefix(long, short) && len(long)-len(short) <= opts.MaxSuffixChars {
		return true
	}

	delta := float64(len(long)-len(short)) / float64(len(long))
	if delta > opts.MaxLengthDelta {
		return false
	}
	return wordOverlap(a, b) >= opts.MinWordOverlap
}

// normalize lowercases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		case r == '\'':
		default:
			space = true
		}
	}
	return b.String()
}

func wordOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	denom := len(wa)
	if len(wb) > denom {
		denom = len(wb)
	}
	return float64(shared) / float64(denom)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

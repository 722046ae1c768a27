// Package postfilter drops transcripts that are recognizer hallucinations
// or degenerate noise before they are emitted.
package postfilter

import (
	"strings"
	"unicode"
)

const (
	DefaultMinLength              = 2
	DefaultMaxLength              = 200
	DefaultMaxTerminalPunctuation = 4
)

// Phrases that are rejected when they make up the whole transcript.
var defaultPhrases = []string{
	"thank you",
	"thank you very much",
	"thanks",
	"bye",
	"bye bye",
	"goodbye",
	"you",
	"subtitles",
	"subtitle",
	"captions",
	"the end",
	"see you next time",
	"see you in the next video",
	"music",
	"applause",
	"silence",
}

// Markers that reject a transcript wherever they appear.
var defaultMarkers = []string{
	"thank you for watching",
	"thanks for watching",
	"thank you so much for watching",
	"please subscribe",
	"like and subscribe",
	"don't forget to subscribe",
	"subtitles by",
	"subtitled by",
	"captions by",
	"transcribed by",
	"translated by",
	"amara.org",
}

var fillers = map[string]struct{}{
	"um": {}, "umm": {}, "uh": {}, "uhh": {}, "uhm": {}, "hmm": {}, "hm": {}, "mm": {}, "mmm": {},
	"mhm": {}, "ah": {}, "ahh": {}, "oh": {}, "er": {}, "erm": {}, "eh": {}, "huh": {},
}

type Config struct {
	// Phrases extends the whole-transcript reject list.
	Phrases []string `mapstructure:"phrases"`
	// Markers extends the substring reject list.
	Markers                []string `mapstructure:"markers"`
	MinLength              int      `mapstructure:"min_length"`
	MaxLength              int      `mapstructure:"max_length"`
	MaxTerminalPunctuation int      `mapstructure:"max_terminal_punctuation"`
}

// Filter is immutable and safe for concurrent use.
type Filter struct {
	phrases  map[string]struct{}
	markers  []string
	minLen   int
	maxLen   int
	maxPunct int
}

func New(cfg Config) *Filter {
	f := &Filter{
		phrases:  make(map[string]struct{}, len(defaultPhrases)+len(cfg.Phrases)),
		minLen:   cfg.MinLength,
		maxLen:   cfg.MaxLength,
		maxPunct: cfg.MaxTerminalPunctuation,
	}
	if f.minLen <= 0 {
		f.minLen = DefaultMinLength
	}
	if f.maxLen <= 0 {
		f.maxLen = DefaultMaxLength
	}
	if f.maxPunct <= 0 {
		f.maxPunct = DefaultMaxTerminalPunctuation
	}
	for _, p := range append(append([]string(nil), defaultPhrases...), cfg.Phrases...) {
		if n := normalize(p); n != "" {
			f.phrases[n] = struct{}{}
		}
	}
	for _, m := range append(append([]string(nil), defaultMarkers...), cfg.Markers...) {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			f.markers = append(f.markers, m)
		}
	}
	return f
}

var defaultFilter = New(Config{})

// Apply runs the default filter.
func Apply(text string) (string, bool) {
	return defaultFilter.Apply(text)
}

// Apply returns the trimmed text and true when it should be emitted.
func (f *Filter) Apply(text string) (string, bool) {
	text = strings.TrimSpace(text)
	n := len([]rune(text))
	if n < f.minLen || n > f.maxLen {
		return "", false
	}
	if terminalPunctuation(text) > f.maxPunct {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, m := range f.markers {
		if strings.Contains(lower, m) {
			return "", false
		}
	}
	norm := normalize(text)
	if norm == "" {
		return "", false
	}
	if _, ok := f.phrases[norm]; ok {
		return "", false
	}
	if degenerate(strings.Fields(norm)) {
		return "", false
	}
	return text, true
}

// Reason explains why text is rejected, or returns "" when it passes.
func (f *Filter) Reason(text string) string {
	text = strings.TrimSpace(text)
	n := len([]rune(text))
	switch {
	case n < f.minLen:
		return "too_short"
	case n > f.maxLen:
		return "too_long"
	case terminalPunctuation(text) > f.maxPunct:
		return "punctuation"
	}
	if _, ok := f.Apply(text); !ok {
		return "hallucination"
	}
	return ""
}

func terminalPunctuation(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case '.', '!', '?', '…':
			n++
		}
	}
	return n
}

// degenerate reports filler-only, single-character-only and stuck repeats.
func degenerate(tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	allFiller, allSingle, allSame := true, true, len(tokens) >= 4
	for _, tok := range tokens {
		if _, ok := fillers[tok]; !ok {
			allFiller = false
		}
		if len([]rune(tok)) > 1 {
			allSingle = false
		}
		if tok != tokens[0] {
			allSame = false
		}
	}
	return allFiller || allSingle || allSame
}

// normalize lowercases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || r == '-':
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Package scorers contains the in-repo heuristic text scorers. They are
// deliberately cheap: the turn engine only consumes their numeric
// outputs and treats any failure as neutral, so nothing here may block
// a turn.
package scorers

import (
	"strings"
	"unicode"
)

// Canonical tag lexicons. Emotional tags surface in reflections as
// signals of engagement; shadow tags as signals of avoidance.
var (
	EmotionalTags = []string{
		"joy", "grief", "fear", "hope", "anger", "longing",
		"gratitude", "wonder", "tenderness", "awe",
	}
	ShadowTags = []string{
		"avoidance", "doubt", "shame", "perfectionism",
		"numbness", "resentment", "dread", "stuck",
	}
)

var positiveWords = map[string]bool{
	"good": true, "great": true, "love": true, "loved": true, "happy": true,
	"calm": true, "proud": true, "excited": true, "grateful": true,
	"hopeful": true, "optimistic": true, "strong": true, "clear": true,
	"progress": true, "done": true, "finished": true, "energized": true,
	"joy": true, "gratitude": true, "wonder": true, "hope": true,
}

var negativeWords = map[string]bool{
	"bad": true, "tired": true, "exhausted": true, "stuck": true,
	"afraid": true, "anxious": true, "overwhelmed": true, "sad": true,
	"angry": true, "hopeless": true, "ashamed": true, "avoiding": true,
	"grief": true, "fear": true, "shame": true, "doubt": true,
	"dread": true, "numb": true, "resentment": true, "failed": true,
}

var positiveHints = map[string]bool{
	"grateful": true, "proud": true, "excited": true, "optimistic": true,
}

// Result is the numeric reading of one reflection.
type Result struct {
	Score     float64  // [-1,1], sign of the emotional charge
	Intensity float64  // [0,1], how loaded the text is
	Tags      []string // lexicon tags present in the text
}

// Sentiment scores a reflection. Empty or unreadable text is neutral.
func Sentiment(text string) Result {
	words := tokenize(text)
	if len(words) == 0 {
		return Result{}
	}
	var pos, neg int
	for _, w := range words {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	var res Result
	if pos+neg > 0 {
		res.Score = float64(pos-neg) / float64(pos+neg)
	}
	exclaim := strings.Count(text, "!")
	res.Intensity = clamp01(float64(pos+neg)/10 + 0.1*float64(exclaim))

	present := map[string]bool{}
	for _, w := range words {
		present[w] = true
	}
	for _, tag := range EmotionalTags {
		if present[tag] {
			res.Tags = append(res.Tags, tag)
		}
	}
	for _, tag := range ShadowTags {
		if present[tag] {
			res.Tags = append(res.Tags, tag)
		}
	}
	return res
}

// PositiveHint reports whether the text carries one of the upbeat
// keywords that trigger the baseline growth nudge.
func PositiveHint(text string) bool {
	for _, w := range tokenize(text) {
		if positiveHints[w] {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

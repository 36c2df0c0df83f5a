package scorers

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"to": true, "of": true, "in": true, "on": true, "for": true,
	"with": true, "my": true, "i": true, "is": true, "it": true,
	"that": true, "this": true, "was": true, "be": true, "at": true,
}

// PatternScore measures how strongly a candidate title echoes themes
// the user keeps returning to. Words that appear in at least two
// history entries count as recurring; the score is the fraction of the
// title's meaningful words that recur, in [0,1].
func PatternScore(history []string, title string) float64 {
	titleWords := meaningful(tokenize(title))
	if len(titleWords) == 0 {
		return 0
	}
	seenIn := map[string]int{}
	for _, entry := range history {
		entryWords := map[string]bool{}
		for _, w := range meaningful(tokenize(entry)) {
			entryWords[w] = true
		}
		for w := range entryWords {
			seenIn[w]++
		}
	}
	recurring := 0
	for _, w := range titleWords {
		if seenIn[w] >= 2 {
			recurring++
		}
	}
	return float64(recurring) / float64(len(titleWords))
}

func meaningful(words []string) []string {
	var out []string
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

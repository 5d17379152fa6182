package extract

import "strings"

// negativeKeywords are terms that mark an enforcement context as adverse for
// the entity regardless of surrounding language.
var negativeKeywords = []string{
	"fraud", "penalty", "violation", "illegal", "misleading",
	"contravention", "breach", "improper", "manipulation",
	"non-compliance", "fine", "cease and desist", "restrain",
	"suspend", "debar", "disgorgement", "ban", "prohibited",
	"unprofessional", "unfair", "warning", "reprimand", "sanction",
}

// Lexicons for the fallback scorer, applied only when no enforcement keyword
// decides the label outright.
var (
	negativeWords = []string{
		"guilty", "failed", "failure", "default", "adverse", "liable",
		"wrongful", "concealed", "denied", "rejected", "dismissed",
	}
	positiveWords = []string{
		"disposed of", "no adverse", "exonerated", "complied", "compliance",
		"revoked the directions", "set aside", "allowed the appeal", "absolved",
	}
)

// Sentiment labels an entity's context. Enforcement keywords decide first;
// otherwise a simple lexicon count breaks the tie, defaulting to Neutral.
func Sentiment(context string) string {
	lower := strings.ToLower(context)
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			return "Negative"
		}
	}

	var neg, pos int
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	switch {
	case neg > pos:
		return "Negative"
	case pos > neg:
		return "Positive"
	default:
		return "Neutral"
	}
}

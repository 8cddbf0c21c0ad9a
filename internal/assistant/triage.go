package assistant

import "strings"

type Intent int

const (
	IntentDataQuery Intent = iota
	IntentGlossary
)

func (i Intent) String() string {
	if i == IntentGlossary {
		return "glossary"
	}
	return "data_query"
}

var glossaryTriggers = []string{"what is", "define", "meaning of", "explain correlation between"}

// Classify routes a question containing a definitional phrase to the
// glossary path. The match is a case-insensitive substring test, so
// "What is the total revenue?" is a glossary question too.
func Classify(question string) Intent {
	lower := strings.ToLower(question)
	for _, trigger := range glossaryTriggers {
		if strings.Contains(lower, trigger) {
			return IntentGlossary
		}
	}
	return IntentDataQuery
}

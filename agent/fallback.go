package agent

import (
	"strings"

	"github.com/hivelane/outreach/reasoning"
)

var negativePhrases = []string{
	"not interested",
	"no thanks",
	"no thank you",
	"unsubscribe",
	"stop contacting",
	"please remove me",
	"decline",
}

var positivePhrases = []string{
	"interested",
	"sounds good",
	"sign me up",
	"count me in",
	"i'm in",
	"yes,",
	"yes!",
	"happy to",
	"would love to",
}

var attachmentPhrases = []string{
	"attached",
	"attachment",
	"enclosed",
	"see the file",
}

// classifyFallback is the keyword heuristic used when no reasoning service
// is available. Negative phrasing wins over positive so "interested, but
// actually not interested" errs toward a human-readable rejection rather
// than a silent qualification.
func classifyFallback(body string) reasoning.ResponseClassification {
	lower := strings.ToLower(body)

	out := reasoning.ResponseClassification{Sentiment: "ambiguous"}
	for _, phrase := range attachmentPhrases {
		if strings.Contains(lower, phrase) {
			out.MentionsAttachments = true
			break
		}
	}
	for _, phrase := range negativePhrases {
		if strings.Contains(lower, phrase) {
			out.Sentiment = "negative"
			return out
		}
	}
	for _, phrase := range positivePhrases {
		if strings.Contains(lower, phrase) {
			out.Sentiment = "positive"
			return out
		}
	}
	return out
}

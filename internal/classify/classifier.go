package classify

import (
	"regexp"
	"strings"
)

// Default keyword sets. These are starting points, not policy: callers can
// override any set through configuration (see NewClassifier).
var (
	// Promotional/automation markers. Matching either the body or the sender
	// address means the mail is machine-generated and gets no reply.
	defaultPromotionalKeywords = []string{
		"unsubscribe", "newsletter", "offer", "discount", "sale", "welcome",
		"verify", "alert", "security", "code", "login", "update", "marketing",
		"noreply", "no-reply", "notification", "statement", "receipt",
	}

	defaultMeetingKeywords = []string{
		"meeting", "zoom", "teams", "calendly", "schedule", "availability", "meet",
	}

	defaultSupportKeywords = []string{
		"help", "issue", "problem", "error", "fail", "broken", "bug", "support", "ticket",
	}

	// Sender patterns for addresses that must never receive a reply,
	// checked before any classification runs.
	defaultNoReplyPatterns = []string{
		"noreply", "no-reply", "do-not-reply", "donotreply", "mailer-daemon", "notification",
	}
)

// Ruleset holds the keyword sets the classifier matches against
type Ruleset struct {
	Promotional []string
	Meeting     []string
	Support     []string
	NoReply     []string
}

// DefaultRuleset returns the built-in keyword sets
func DefaultRuleset() Ruleset {
	return Ruleset{
		Promotional: defaultPromotionalKeywords,
		Meeting:     defaultMeetingKeywords,
		Support:     defaultSupportKeywords,
		NoReply:     defaultNoReplyPatterns,
	}
}

// Classifier maps message text and sender to an intent via keyword rules.
// It is a pure function of its inputs; no I/O, no state mutation.
type Classifier struct {
	rules Ruleset
}

// NewClassifier creates a classifier with the given ruleset. Empty sets fall
// back to the defaults so a partial configuration override stays safe.
func NewClassifier(rules Ruleset) *Classifier {
	def := DefaultRuleset()
	if len(rules.Promotional) == 0 {
		rules.Promotional = def.Promotional
	}
	if len(rules.Meeting) == 0 {
		rules.Meeting = def.Meeting
	}
	if len(rules.Support) == 0 {
		rules.Support = def.Support
	}
	if len(rules.NoReply) == 0 {
		rules.NoReply = def.NoReply
	}
	return &Classifier{rules: rules}
}

// Classify determines the intent of a message from its body text and sender
// address. Checks are ordered and mutually exclusive; the first match wins:
// promotional (body or sender) > meeting > support > general.
func (c *Classifier) Classify(body, sender string) Classification {
	bodyLower := strings.ToLower(body)
	senderLower := strings.ToLower(sender)

	if containsAny(bodyLower, c.rules.Promotional) || containsAny(senderLower, c.rules.Promotional) {
		return Classification{Intent: IntentPromotional, Confidence: 1.0}
	}

	if containsAny(bodyLower, c.rules.Meeting) {
		return Classification{Intent: IntentMeeting, Confidence: 0.9}
	}

	if containsAny(bodyLower, c.rules.Support) {
		return Classification{Intent: IntentSupport, Confidence: 0.9}
	}

	return Classification{Intent: IntentGeneral, Confidence: 0.5}
}

// IsNoReply reports whether the sender address matches a known automation
// marker. Such senders are filtered before classification.
func (c *Classifier) IsNoReply(sender string) bool {
	return containsAny(strings.ToLower(sender), c.rules.NoReply)
}

// containsAny reports whether any keyword appears as a substring of text.
// text must already be lowercased.
func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeBody strips HTML tags and collapses whitespace so HTML-only
// messages can be classified like plain text ones.
func NormalizeBody(content string) string {
	content = htmlTagPattern.ReplaceAllString(content, " ")
	content = whitespacePattern.ReplaceAllString(content, " ")
	content = strings.ReplaceAll(content, "&nbsp;", " ")
	content = strings.ReplaceAll(content, "&amp;", "&")
	return strings.TrimSpace(content)
}

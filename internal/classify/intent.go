package classify

// Intent is the closed set of labels describing why a message was sent
type Intent string

const (
	IntentMeeting     Intent = "Meeting Request"
	IntentSupport     Intent = "Support Query"
	IntentInformation Intent = "Information Request"
	IntentPromotional Intent = "Promotional/Notification"
	IntentGeneral     Intent = "General"
)

// IsValid checks whether the intent is a known label
func (i Intent) IsValid() bool {
	switch i {
	case IntentMeeting, IntentSupport, IntentInformation, IntentPromotional, IntentGeneral:
		return true
	}
	return false
}

// Classification is the result of classifying one message
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"` // in [0.0, 1.0]
}

// NeedsReply reports whether a message with this intent should get a drafted
// reply. Promotional mail is filtered out, everything else is answered.
func (i Intent) NeedsReply() bool {
	return i != IntentPromotional
}

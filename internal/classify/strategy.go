package classify

// Reply strategies by intent. The strategy is a directive embedded into the
// reply generation prompt.
var strategies = map[Intent]string{
	IntentMeeting:     "Propose a meeting time and ask for confirmation.",
	IntentSupport:     "Acknowledge the issue and promise support investigation.",
	IntentInformation: "Provide the requested information clearly.",
	IntentGeneral:     "Acknowledge receipt and ask how we can help.",
}

// StrategyFor returns the reply directive for an intent. Unknown or unmapped
// intents fall back to the General strategy, so this never fails.
func StrategyFor(intent Intent) string {
	if s, ok := strategies[intent]; ok {
		return s
	}
	return strategies[IntentGeneral]
}

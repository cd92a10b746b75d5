package dialogue

import "strings"

// Canned clarifying questions keyed by the set of missing slots, not by its
// size: {subject,date} and {subject,time} read differently even though both
// have two missing slots.
var promptsByMissing = map[string]string{
	"subject":           "Who is the meeting with?",
	"date":              "What date should I schedule it for?",
	"time":              "What time works for you?",
	"subject,date":      "Who is the meeting with, and on what date?",
	"subject,time":      "Who is the meeting with, and at what time?",
	"date,time":         "When should it be? Please give me a date and a time.",
	"subject,date,time": "Sure, I can set that up. Who is the meeting with, and what date and time should I use?",
}

// NextPrompt returns the single combined question covering every missing
// slot, or "" when nothing is missing.
func NextPrompt(state SlotState) string {
	missing := state.Missing()
	if len(missing) == 0 {
		return ""
	}
	return promptsByMissing[strings.Join(missing, ",")]
}

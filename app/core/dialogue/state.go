package dialogue

import "strings"

// Slot names, fixed for the scheduling request.
const (
	SlotSubject = "subject"
	SlotDate    = "date"
	SlotTime    = "time"
)

// SlotState is the per-user dialogue session: the partially filled slot set
// and whether slot-filling is in progress. The zero value is the IDLE state.
type SlotState struct {
	Active  bool
	Subject string
	Date    string
	Time    string

	// MeridiemAssumed marks a time slot filled from "N o'clock", where the
	// AM/PM half was guessed rather than stated.
	MeridiemAssumed bool
}

func (s SlotState) Complete() bool {
	return s.Subject != "" && s.Date != "" && s.Time != ""
}

// Missing returns the unfilled slot names in canonical order.
func (s SlotState) Missing() []string {
	var missing []string
	if s.Subject == "" {
		missing = append(missing, SlotSubject)
	}
	if s.Date == "" {
		missing = append(missing, SlotDate)
	}
	if s.Time == "" {
		missing = append(missing, SlotTime)
	}
	return missing
}

var resetPhrases = map[string]struct{}{
	"thanks": {}, "thank you": {}, "thankyou": {}, "thanks a lot": {},
	"reset": {}, "start over": {}, "never mind": {}, "nevermind": {},
	"done": {}, "forget it": {},
}

// IsReset reports whether the utterance ends or abandons the current request.
func IsReset(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.TrimRight(cleaned, ".!?")
	_, ok := resetPhrases[cleaned]
	return ok
}

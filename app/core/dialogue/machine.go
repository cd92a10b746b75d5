package dialogue

import (
	"calagent/app/core/nlu"
)

// The machine is a pure reducer: (state, utterance) -> (state', output).
// Identical state and utterance always produce the identical result; nothing
// here reads the clock or touches I/O.

// SlotValues is the completed request handed to the calendar executor. The
// values are still raw phrases.
type SlotValues struct {
	Subject string
	Date    string
	Time    string
}

// Supersession records an extractor firing for an already-filled slot. The
// new value is discarded; this is an event to log, not an error.
type Supersession struct {
	Slot      string
	Kept      string
	Discarded string
}

type StepResult struct {
	State SlotState
	// Reply is the clarifying question, or a reset acknowledgement. Empty
	// when Ready is set; the caller composes the completion reply.
	Reply string
	// Ready means all three slots filled this turn. State is already the
	// cleared IDLE state, so a failed downstream create cannot keep the
	// session open.
	Ready      bool
	Filled     SlotValues
	Superseded []Supersession
	WasReset   bool
}

// Step advances the slot-filling session by one utterance. Filled slots are
// never overwritten before completion or reset (first-write-wins).
func Step(state SlotState, utterance string) StepResult {
	if IsReset(utterance) {
		return StepResult{State: SlotState{}, Reply: "Okay, I've cleared that. What would you like to do next?", WasReset: true}
	}

	next := state
	next.Active = true
	var superseded []Supersession

	if subject := nlu.ExtractSubject(utterance); subject != "" {
		if next.Subject == "" {
			next.Subject = subject
		} else if next.Subject != subject {
			superseded = append(superseded, Supersession{Slot: SlotSubject, Kept: next.Subject, Discarded: subject})
		}
	}
	if date := nlu.ExtractDate(utterance); date != "" {
		if next.Date == "" {
			next.Date = date
		} else if next.Date != date {
			superseded = append(superseded, Supersession{Slot: SlotDate, Kept: next.Date, Discarded: date})
		}
	}
	if value, assumed := nlu.ExtractTimeDetail(utterance); value != "" {
		if next.Time == "" {
			next.Time = value
			next.MeridiemAssumed = assumed
		} else if next.Time != value {
			superseded = append(superseded, Supersession{Slot: SlotTime, Kept: next.Time, Discarded: value})
		}
	}

	if next.Complete() {
		return StepResult{
			State: SlotState{},
			Ready: true,
			Filled: SlotValues{
				Subject: next.Subject,
				Date:    next.Date,
				Time:    next.Time,
			},
			Superseded: superseded,
		}
	}

	reply := NextPrompt(next)
	if next.MeridiemAssumed && next.Time != "" {
		reply = reply + " (I read the time as " + next.Time + "; say it again with AM or PM if that's wrong.)"
	}
	return StepResult{State: next, Reply: reply, Superseded: superseded}
}

package nlu

import (
	"context"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"calagent/app/core/calendar"
)

// Criteria extraction shares the structured-JSON completion pattern with
// intent classification. Both extractors return a well-typed value on every
// path; parse failures produce the "other"/zero fallback so the executor can
// answer "could not understand" instead of panicking.

const deleteCriteriaPrompt = `You extract deletion criteria for a calendar assistant.
Read the user message and answer with strict JSON only, no prose:
{
  "kind": "all" | "by_name" | "by_time" | "by_date" | "next",
  "value": "<the name, time or date text, or null for all/next>",
  "exception": {"kind": "by_name" | "by_date", "value": "<text>"} | null
}
"exception" covers phrasings like "except today's" or "except the one with Aman".
Keep "value" and exception "value" as the raw phrase from the message.

User message: `

const updateCriteriaPrompt = `You extract rescheduling criteria for a calendar assistant.
Read the user message and answer with strict JSON only, no prose:
{
  "direction": "postpone" | "prepone",
  "target_kind": "all" | "by_name" | "by_time" | "by_date" | "next",
  "target_value": "<the name, time or date text, or null for all/next>",
  "amount_hours": <integer, how many hours to shift; 1 if unspecified>
}

User message: `

// ExtractDeleteCriteria turns the utterance into a structured deletion
// request. The fallback is {kind: other} with no value.
func (c *Classifier) ExtractDeleteCriteria(ctx context.Context, utterance string) calendar.DeleteCriteria {
	fallback := calendar.DeleteCriteria{Kind: calendar.MatchOther}

	raw, err := c.llm.Complete(ctx, deleteCriteriaPrompt+utterance)
	if err != nil {
		log.Printf("[NLU] Delete criteria extraction unavailable: %v", err)
		return fallback
	}
	payload := StripFences(raw)
	if !gjson.Valid(payload) {
		log.Printf("[NLU] Unparseable delete criteria output: %q", truncate(raw, 200))
		return fallback
	}

	criteria := calendar.DeleteCriteria{
		Kind:  normalizeMatchKind(gjson.Get(payload, "kind").String()),
		Value: strings.TrimSpace(gjson.Get(payload, "value").String()),
	}
	if ex := gjson.Get(payload, "exception"); ex.Exists() && ex.IsObject() {
		kind, ok := normalizeExceptionKind(ex.Get("kind").String())
		value := strings.TrimSpace(ex.Get("value").String())
		if ok && value != "" {
			criteria.Exception = &calendar.Exception{Kind: kind, Value: value}
		}
	}

	if !criteria.Valid() {
		return fallback
	}
	return criteria
}

// ExtractUpdateCriteria turns the utterance into a structured rescheduling
// request. The fallback is the zero value, whose direction is invalid.
func (c *Classifier) ExtractUpdateCriteria(ctx context.Context, utterance string) calendar.UpdateCriteria {
	var fallback calendar.UpdateCriteria

	raw, err := c.llm.Complete(ctx, updateCriteriaPrompt+utterance)
	if err != nil {
		log.Printf("[NLU] Update criteria extraction unavailable: %v", err)
		return fallback
	}
	payload := StripFences(raw)
	if !gjson.Valid(payload) {
		log.Printf("[NLU] Unparseable update criteria output: %q", truncate(raw, 200))
		return fallback
	}

	criteria := calendar.UpdateCriteria{
		TargetKind:  normalizeMatchKind(gjson.Get(payload, "target_kind").String()),
		TargetValue: strings.TrimSpace(gjson.Get(payload, "target_value").String()),
		AmountHours: int(gjson.Get(payload, "amount_hours").Int()),
	}
	switch strings.ToLower(strings.TrimSpace(gjson.Get(payload, "direction").String())) {
	case "postpone", "later", "delay":
		criteria.Direction = calendar.DirectionPostpone
	case "prepone", "earlier", "advance":
		criteria.Direction = calendar.DirectionPrepone
	}
	if criteria.AmountHours <= 0 {
		criteria.AmountHours = 1
	}

	if !criteria.Valid() {
		return fallback
	}
	return criteria
}

func normalizeMatchKind(raw string) calendar.MatchKind {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	switch cleaned {
	case "all", "everything":
		return calendar.MatchAll
	case "by_name", "byname", "name":
		return calendar.MatchByName
	case "by_time", "bytime", "time":
		return calendar.MatchByTime
	case "by_date", "bydate", "date":
		return calendar.MatchByDate
	case "next", "upcoming":
		return calendar.MatchNext
	}
	return calendar.MatchOther
}

func normalizeExceptionKind(raw string) (calendar.ExceptionKind, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	switch cleaned {
	case "by_name", "byname", "name":
		return calendar.ExceptionByName, true
	case "by_date", "bydate", "date":
		return calendar.ExceptionByDate, true
	}
	return "", false
}

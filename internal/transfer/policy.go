package transfer

import (
	"fmt"
	"strings"
)

// Policy selects when the state machine closes a record.
type Policy string

const (
	// TimeAnchored emits exactly one record per pickup-time token.
	TimeAnchored Policy = "time_anchored"
	// FieldCompletion emits a record once it has a time, a flight, and a name.
	FieldCompletion Policy = "field_completion"
	// GroupedByKey merges records sharing a (time, flight) pair and sorts them.
	GroupedByKey Policy = "grouped"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = TimeAnchored

var policyAliases = map[string]Policy{
	"":                 DefaultPolicy,
	"time_anchored":    TimeAnchored,
	"time":             TimeAnchored,
	"hour":             TimeAnchored,
	"row":              TimeAnchored,
	"field_completion": FieldCompletion,
	"fields":           FieldCompletion,
	"completion":       FieldCompletion,
	"grouped":          GroupedByKey,
	"grouped_by_key":   GroupedByKey,
	"group":            GroupedByKey,
}

// ParsePolicy resolves a policy name. Hyphens and underscores are interchangeable.
func ParsePolicy(s string) (Policy, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if p, ok := policyAliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown policy %q (want time_anchored, field_completion, or grouped)", s)
}

// Policies lists the canonical policy names.
func Policies() []Policy {
	return []Policy{TimeAnchored, FieldCompletion, GroupedByKey}
}

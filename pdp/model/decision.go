package model

// RuleKind names the layer that produced a decision.
type RuleKind string

const (
	RuleOverride RuleKind = "OVERRIDE"
	RulePolicy   RuleKind = "POLICY"
	RuleDefault  RuleKind = "DEFAULT"
)

// Reason strings for decisions that no explicit rule produced. Clients and
// tests compare these verbatim, so they are constants, not ad-hoc text.
const (
	ReasonNoApplicablePolicy  = "no applicable policy"
	ReasonNoRestrictingPolicy = "no restricting policy"
	ReasonUnknownResourceType = "unknown resource type"
	ReasonEmployeeInactive    = "employee inactive"
)

// Decision is the engine's answer for one (employee, resource, date) triple.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason"`
	RuleKind      RuleKind `json:"rule_kind"`
	MatchedRuleID string   `json:"matched_rule_id,omitempty"`
}

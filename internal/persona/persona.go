// Package persona holds the rewriting personas and the subscription plans that gate them.
package persona

import "strings"

// Plan is a subscription tier reported by the entitlement service.
// Tiers are ordered; a higher value satisfies every lower requirement.
type Plan int

const (
	PlanNone Plan = iota
	PlanTrial
	PlanEssential
	PlanProfessional
)

// ParsePlan maps a plan name to a Plan. Matching is case-insensitive and
// unknown names map to PlanNone.
func ParsePlan(s string) Plan {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRIAL":
		return PlanTrial
	case "ESSENTIAL":
		return PlanEssential
	case "PROFESSIONAL":
		return PlanProfessional
	default:
		return PlanNone
	}
}

func (p Plan) String() string {
	switch p {
	case PlanTrial:
		return "TRIAL"
	case PlanEssential:
		return "ESSENTIAL"
	case PlanProfessional:
		return "PROFESSIONAL"
	default:
		return "NONE"
	}
}

// Persona is a named rewriting strategy.
type Persona struct {
	ID                 string
	SystemInstructions string
	// MinimumPlan is PlanNone when the persona is available to every caller.
	MinimumPlan Plan
}

// Allows reports whether a caller on plan may use the persona.
func (p Persona) Allows(plan Plan) bool {
	if p.MinimumPlan == PlanNone {
		return true
	}
	return plan >= p.MinimumPlan
}

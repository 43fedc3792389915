package entity

import (
	"fmt"
	"time"

	"github.com/Knetic/govaluate"
)

// WorkflowDefinition is a versioned template describing the ordered
// approval chain for one entity type. At most one definition per entity
// type is active at any time; the engine reads it only when materializing
// a new instance, so later edits never touch in-flight ledgers.
type WorkflowDefinition struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entity_type"`
	Name        string         `json:"name"`
	Version     int            `json:"version"`
	Active      bool           `json:"active"`
	StepSLADays int            `json:"step_sla_days"`
	Steps       []StepTemplate `json:"steps"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StepTemplate is one role-gated decision point in a definition.
// MinAmount/MaxAmount bound the submission amounts the step applies to
// (inclusive on both ends); Expression optionally gates inclusion on the
// full submission snapshot.
type StepTemplate struct {
	StepNumber   int      `json:"step_number"`
	Name         string   `json:"name"`
	RequiredRole string   `json:"required_role"`
	MinAmount    *float64 `json:"min_amount,omitempty"`
	MaxAmount    *float64 `json:"max_amount,omitempty"`
	Expression   string   `json:"expression,omitempty"`
}

// AppliesTo evaluates whether the step should be materialized for a
// submission with the given amount and snapshot parameters. A template
// with no conditions always applies. A malformed expression is a
// configuration error and is returned to the caller.
func (t *StepTemplate) AppliesTo(amount float64, snapshot map[string]interface{}) (bool, error) {
	if t.MinAmount != nil && amount < *t.MinAmount {
		return false, nil
	}
	if t.MaxAmount != nil && amount > *t.MaxAmount {
		return false, nil
	}

	if t.Expression == "" {
		return true, nil
	}

	expr, err := govaluate.NewEvaluableExpression(t.Expression)
	if err != nil {
		return false, fmt.Errorf("parse step condition %q: %w", t.Expression, err)
	}

	params := make(map[string]interface{}, len(snapshot)+1)
	for k, v := range snapshot {
		params[k] = v
	}
	params["amount"] = amount

	result, err := expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("evaluate step condition %q: %w", t.Expression, err)
	}

	pass, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("step condition %q is not boolean", t.Expression)
	}
	return pass, nil
}

// Validate checks structural invariants of a definition before it is saved
func (d *WorkflowDefinition) Validate() error {
	if d.EntityType == "" {
		return fmt.Errorf("entity type is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition requires at least one step")
	}
	for i, s := range d.Steps {
		if s.StepNumber != i+1 {
			return fmt.Errorf("step %d: numbers must be contiguous from 1", s.StepNumber)
		}
		if s.RequiredRole == "" {
			return fmt.Errorf("step %d: required role is missing", s.StepNumber)
		}
		if s.MinAmount != nil && s.MaxAmount != nil && *s.MinAmount > *s.MaxAmount {
			return fmt.Errorf("step %d: min amount exceeds max amount", s.StepNumber)
		}
	}
	return nil
}

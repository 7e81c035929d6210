// Package policy evaluates the lead qualification policy with OPA.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/open-policy-agent/opa/v1/rego"
)

// DefaultPolicy is the built-in lead qualification policy.
//
//go:embed lead_policy.rego
var DefaultPolicy string

const query = "data.leadflow.decision"

// Engine is the OPA-backed lead qualifier.
type Engine struct {
	query     rego.PreparedEvalQuery
	threshold int
}

// NewEngine prepares the given rego module. threshold is passed to the
// policy as input.threshold; zero lets the policy default apply.
func NewEngine(ctx context.Context, module string, threshold int) (*Engine, error) {
	r := rego.New(
		rego.Query(query),
		rego.Module("lead_policy.rego", module),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: prepared, threshold: threshold}, nil
}

// Load prepares the policy at path, or DefaultPolicy when path is empty.
func Load(ctx context.Context, path string, threshold int) (*Engine, error) {
	module := DefaultPolicy
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		module = string(data)
	}
	return NewEngine(ctx, module, threshold)
}

// Decide evaluates the policy for a lead.
func (e *Engine) Decide(ctx context.Context, lead domain.LeadSnapshot) (domain.LeadDecision, error) {
	input := map[string]interface{}{
		"score":      lead.Score,
		"threshold":  e.threshold,
		"legal_area": lead.Answers[domain.AnswerLegalArea],
		"details":    lead.Answers[domain.AnswerDetails],
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.LeadDecision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.LeadDecision{}, fmt.Errorf("policy %s is undefined", query)
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return domain.LeadDecision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	var d domain.LeadDecision
	d.Qualified, _ = obj["qualified"].(bool)
	d.Priority, _ = obj["priority"].(string)
	d.Area, _ = obj["area"].(string)
	if d.Priority == "" || d.Area == "" {
		return domain.LeadDecision{}, fmt.Errorf("incomplete policy decision: %v", obj)
	}
	return d, nil
}

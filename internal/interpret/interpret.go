// Package interpret recovers an ImplementationPlan from free-text model output.
//
// Candidates are tried through a fixed sequence of total stages: strict
// parse, mechanical repair and re-parse, then fallback synthesis. Each
// stage runs only if every earlier one failed.
package interpret

import (
	"errors"

	"github.com/joescharf/agentpipe/internal/models"
)

// Result is the interpreter's output. Plan is never nil when err is nil.
type Result struct {
	Plan     *models.ImplementationPlan
	Source   models.PlanSource
	ParseErr error  // last parse failure; nil for direct parses
	Text     string // the text that parsed, empty for fallback
}

// candidates returns the distinct texts worth parsing: the fenced interior
// trimmed to its object, then the whole reply trimmed to its object.
func candidates(raw string) []string {
	first := TrimToObject(StripFence(raw))
	second := TrimToObject(raw)
	if second == first {
		return []string{first}
	}
	return []string{first, second}
}

type stage struct {
	source  models.PlanSource
	prepare func(string) string
}

var stages = []stage{
	{models.PlanSourceDirect, func(s string) string { return s }},
	{models.PlanSourceRepaired, Repair},
}

// Interpret returns a plan for raw. Malformed replies never produce an error;
// an error means even fallback synthesis failed.
func Interpret(raw string, task *models.TaskDescriptor) (*Result, error) {
	var lastErr error
	for _, st := range stages {
		for _, c := range candidates(raw) {
			text := st.prepare(c)
			plan, err := Parse(text)
			if err == nil {
				res := &Result{Plan: plan, Source: st.source, Text: text}
				if st.source != models.PlanSourceDirect {
					res.ParseErr = lastErr
				}
				return res, nil
			}
			lastErr = err
		}
	}

	plan := Fallback(raw, task, lastErr)
	if plan == nil || len(plan.Files) == 0 {
		return nil, errors.New("interpret: fallback produced no files")
	}
	return &Result{Plan: plan, Source: models.PlanSourceFallback, ParseErr: lastErr}, nil
}

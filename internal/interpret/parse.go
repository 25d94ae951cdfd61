package interpret

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/agentpipe/internal/models"
)

// ErrInvalidStructure means the reply parsed but is not an object with a files array.
var ErrInvalidStructure = errors.New("invalid implementation structure: missing files array")

// Parse stages reported in ParseError.
const (
	StageSyntax    = "syntax"
	StageStructure = "structure"
	StageValidate  = "validate"
)

// ParseError is a structured failure from Parse.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var validate = validator.New()

var fenceRe = regexp.MustCompile("```(?:json|JSON)?[ \\t]*\\n?([\\s\\S]*?)\\n?```")

// StripFence returns the interior of the first fenced code block. Text that
// already starts with an object is returned trimmed, so fences inside string
// values are left alone.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "{") {
		return t
	}
	if m := fenceRe.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1])
	}
	return t
}

// TrimToObject returns the substring from the first '{' to the last '}'.
func TrimToObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// Parse decodes text strictly and validates it as an ImplementationPlan.
func Parse(text string) (*models.ImplementationPlan, error) {
	var generic any
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return nil, &ParseError{Stage: StageSyntax, Err: err}
	}
	obj, ok := generic.(map[string]any)
	if !ok {
		return nil, &ParseError{Stage: StageStructure, Err: ErrInvalidStructure}
	}
	if _, ok := obj["files"].([]any); !ok {
		return nil, &ParseError{Stage: StageStructure, Err: ErrInvalidStructure}
	}

	var plan models.ImplementationPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, &ParseError{Stage: StageStructure, Err: err}
	}
	for i := range plan.Files {
		f := &plan.Files[i]
		f.Path = strings.TrimPrefix(strings.TrimSpace(f.Path), "./")
		f.Action = NormalizeAction(f.Action)
	}
	if err := validatePlan(&plan); err != nil {
		return nil, &ParseError{Stage: StageValidate, Err: err}
	}
	return &plan, nil
}

// NormalizeAction folds common synonyms onto create and modify.
// Unknown actions pass through and fail validation.
func NormalizeAction(a models.FileAction) models.FileAction {
	switch strings.ToLower(strings.TrimSpace(string(a))) {
	case "", "create", "add", "new":
		return models.FileActionCreate
	case "modify", "update", "edit", "replace", "overwrite":
		return models.FileActionModify
	default:
		return a
	}
}

func validatePlan(plan *models.ImplementationPlan) error {
	err := validate.Struct(plan)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", e.Namespace(), e.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

package models

import "fmt"

// ResultKind tags the DecisionResult variant.
type ResultKind string

const (
	ResultDeterministic      ResultKind = "deterministic"
	ResultRequiresDiscretion ResultKind = "requires_discretion"
	ResultVoid               ResultKind = "void"
	ResultOverridden         ResultKind = "overridden"
)

// DecisionResult is the outcome of evaluating a statute against a subject.
//
//	Deterministic{EffectApplied, Parameters}
//	RequiresDiscretion{Issue, NarrativeHint, AssignedTo}
//	Void{Reason}
//	Overridden{Original, New, Justification}
type DecisionResult struct {
	Kind ResultKind `json:"type"`

	EffectApplied string            `json:"effect_applied,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`

	Issue         string `json:"issue,omitempty"`
	NarrativeHint string `json:"narrative_hint,omitempty"`
	AssignedTo    string `json:"assigned_to,omitempty"`

	Reason string `json:"reason,omitempty"`

	Original      *DecisionResult `json:"original,omitempty"`
	New           *DecisionResult `json:"new,omitempty"`
	Justification string          `json:"justification,omitempty"`
}

func Deterministic(effect string, params map[string]string) DecisionResult {
	return DecisionResult{Kind: ResultDeterministic, EffectApplied: effect, Parameters: params}
}

func RequiresDiscretion(issue, hint, assignedTo string) DecisionResult {
	return DecisionResult{Kind: ResultRequiresDiscretion, Issue: issue, NarrativeHint: hint, AssignedTo: assignedTo}
}

func Void(reason string) DecisionResult {
	return DecisionResult{Kind: ResultVoid, Reason: reason}
}

func Overridden(original, replacement DecisionResult, justification string) DecisionResult {
	return DecisionResult{
		Kind:          ResultOverridden,
		Original:      &original,
		New:           &replacement,
		Justification: justification,
	}
}

// Validate checks the variant tag and, for overrides, both nested results.
func (r DecisionResult) Validate() error {
	switch r.Kind {
	case ResultDeterministic, ResultRequiresDiscretion, ResultVoid:
		return nil
	case ResultOverridden:
		if r.Original == nil || r.New == nil {
			return fmt.Errorf("overridden result requires original and new")
		}
		if r.Justification == "" {
			return fmt.Errorf("overridden result requires justification")
		}
		if err := r.Original.Validate(); err != nil {
			return fmt.Errorf("original: %w", err)
		}
		if err := r.New.Validate(); err != nil {
			return fmt.Errorf("new: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown result type %q", r.Kind)
	}
}

package inspection

import (
	"github.com/go-playground/validator/v10"
)

// FormStep is a step of the inspection form.
type FormStep int

const (
	StepSchool FormStep = iota
	StepDate
	StepValues
	StepReview
)

// fields validated before leaving each step (Go field names, as expected by StructPartial)
var stepFields = map[FormStep][]string{
	StepSchool: {"OrgUnit"},
	StepDate:   {"OccurredAt"},
	StepValues: {"Values"},
}

// FormState is the state of a multi-step inspection form.
// Transitions never modify the receiver; they return the next state.
type FormState struct {
	Step    FormStep        `json:"step"`
	Touched map[string]bool `json:"touched"`
	Draft   NewInspection   `json:"draft"`
}

func (s FormState) clone() FormState {
	touched := make(map[string]bool, len(s.Touched))
	for k, v := range s.Touched {
		touched[k] = v
	}
	values := make(map[string]string, len(s.Draft.Values))
	for k, v := range s.Draft.Values {
		values[k] = v
	}
	s.Touched = touched
	s.Draft.Values = values
	return s
}

// Touch marks field as touched.
func (s FormState) Touch(field string) FormState {
	next := s.clone()
	next.Touched[field] = true
	return next
}

// Next validates the fields of the current step and moves to the following one.
// On error the returned state stays on the current step with its fields touched.
func (s FormState) Next(validate *validator.Validate) (FormState, error) {
	next := s.clone()
	if next.Step >= StepReview {
		return next, nil
	}

	fields := stepFields[next.Step]
	for _, f := range fields {
		next.Touched[f] = true
	}
	draft := next.Draft
	draft.Clean()
	if err := validate.StructPartial(draft, fields...); err != nil {
		return next, err
	}
	next.Draft = draft
	next.Step++
	return next, nil
}

// Back moves to the previous step, keeping the draft.
func (s FormState) Back() FormState {
	next := s.clone()
	if next.Step > StepSchool {
		next.Step--
	}
	return next
}

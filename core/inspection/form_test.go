package inspection

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ukaguzi/core"
)

func newTestValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

// errorFields returns the names of the invalid fields of err.
func errorFields(err error) []string {
	var flds []string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range e {
			flds = append(flds, fe.Field())
		}
	case *core.ValidationError:
		for _, fe := range e.Fields {
			flds = append(flds, fe.Field)
		}
	}
	return flds
}

func TestFormState(t *testing.T) {
	validate := newTestValidator()

	var s FormState
	s, err := s.Next(validate)
	require.Error(t, err)
	assert.Equal(t, StepSchool, s.Step)
	assert.True(t, s.Touched["OrgUnit"])
	assert.Equal(t, []string{"org_unit"}, errorFields(err))

	s.Draft.OrgUnit = " s1 "
	s, err = s.Next(validate)
	require.NoError(t, err)
	assert.Equal(t, StepDate, s.Step)
	assert.Equal(t, "s1", s.Draft.OrgUnit)

	s.Draft.OccurredAt = "2024-13-01"
	s, err = s.Next(validate)
	require.Error(t, err)
	assert.Equal(t, StepDate, s.Step)

	s.Draft.OccurredAt = "2024-06-01"
	s, err = s.Next(validate)
	require.NoError(t, err)
	assert.Equal(t, StepValues, s.Step)

	s = s.Back()
	assert.Equal(t, StepDate, s.Step)
	assert.Equal(t, "2024-06-01", s.Draft.OccurredAt)

	s, err = s.Next(validate)
	require.NoError(t, err)

	withValues := s.Touch("deSeats")
	withValues.Draft.Values["deSeats"] = "12"
	assert.False(t, s.Touched["deSeats"])
	assert.Empty(t, s.Draft.Values)

	done, err := withValues.Next(validate)
	require.NoError(t, err)
	assert.Equal(t, StepReview, done.Step)

	done, err = done.Next(validate)
	require.NoError(t, err)
	assert.Equal(t, StepReview, done.Step)

	first := FormState{}.Back()
	assert.Equal(t, StepSchool, first.Step)
}

package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Date  string `json:"date" validate:"required,isodate"`
	Month string `json:"month" validate:"omitempty,month"`
	Value string `json:"value" validate:"omitempty,numeric_str"`
}

func TestInitValidators(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	tests := []struct {
		name string
		s    sample
		want map[string]string
	}{
		{name: "valid", s: sample{Date: "2024-02-29", Month: "2024-02", Value: "-12.5"}},
		{name: "required", s: sample{}, want: map[string]string{"date": "this field is required"}},
		{name: "bad date", s: sample{Date: "2023-02-29"}, want: map[string]string{"date": "must be a date formatted as YYYY-MM-DD"}},
		{name: "bad month", s: sample{Date: "2024-02-01", Month: "2024-2"}, want: map[string]string{"month": "must be a month formatted as YYYY-MM"}},
		{name: "not a number", s: sample{Date: "2024-02-01", Value: "12 seats"}, want: map[string]string{"value": "must be a number"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.s)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)

			got := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				got[fe.Field()] = fe.Translate(translator)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanValues(t *testing.T) {
	assert.Nil(t, CleanValues(nil))
	assert.Equal(t, map[string]string{"deSeats": "12", "deToilets": ""}, CleanValues(map[string]string{" deSeats": "12 ", "deToilets ": "  "}))
	assert.Equal(t, "s1", CleanString("\t s1 \n"))
}

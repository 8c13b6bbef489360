package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockwatch/alert-composer/internal/model"
)

func TestRequired(t *testing.T) {
	r := Required()

	assert.Error(t, r.Check(nil))
	assert.Error(t, r.Check(""))
	assert.Error(t, r.Check([]any{}))

	assert.NoError(t, r.Check("x"))
	assert.NoError(t, r.Check(0))
	assert.NoError(t, r.Check(0.0))
	assert.NoError(t, r.Check(false))
	assert.EqualError(t, r.Check(""), "This field is required.")
}

func TestMin(t *testing.T) {
	r := Min(1)

	assert.NoError(t, r.Check(nil), "empty values are left to Required")
	assert.NoError(t, r.Check(""))
	assert.NoError(t, r.Check(1))
	assert.NoError(t, r.Check("60"))
	assert.NoError(t, r.Check(1440.0))

	assert.Error(t, r.Check(0))
	assert.Error(t, r.Check("-3"))
	assert.Error(t, r.Check("soon"))
}

func TestCoercible(t *testing.T) {
	tests := []struct {
		name  string
		typ   model.ParamType
		value any
		ok    bool
	}{
		{"int string", model.ParamTypeInt, "400", true},
		{"int json number", model.ParamTypeInt, 14.0, true},
		{"int fraction", model.ParamTypeInt, "12.5", false},
		{"int word", model.ParamTypeInt, "long", false},
		{"float string", model.ParamTypeFloat, "2.5", true},
		{"float int", model.ParamTypeFloat, 2, true},
		{"float word", model.ParamTypeFloat, "two", false},
		{"string", model.ParamTypeString, "close", true},
		{"unknown type", model.ParamType("matrix"), "anything", true},
		{"empty", model.ParamTypeInt, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Coercible(tt.typ).Check(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCoercibleMessages(t *testing.T) {
	assert.EqualError(t, Coercible(model.ParamTypeInt).Check("x"), "Must be an integer.")
	assert.EqualError(t, Coercible(model.ParamTypeFloat).Check("x"), "Must be a float.")
}

func TestOneOf(t *testing.T) {
	r := OneOf([]any{"sma", "ema", 3})

	assert.NoError(t, r.Check("ema"))
	assert.NoError(t, r.Check(3.0))
	assert.NoError(t, r.Check(""))
	assert.Error(t, r.Check("wma"))
}

func TestDecimal(t *testing.T) {
	r := Decimal(5, 2)

	assert.NoError(t, r.Check("5.25"))
	assert.NoError(t, r.Check("999.99"))
	assert.NoError(t, r.Check(12.5))
	assert.NoError(t, r.Check(nil))

	assert.Error(t, r.Check("1000"))
	assert.Error(t, r.Check("1.234"))
	assert.Error(t, r.Check("ten"))
}

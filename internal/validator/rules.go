package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/stockwatch/alert-composer/internal/model"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("present", isPresent)
	_ = v.RegisterValidation("coercible", isCoercible)
	return v
}

// Rule is a single named check on a control value
type Rule struct {
	Name      string
	Message   string
	tag       string
	skipEmpty bool
	normalize func(any) (any, error)
	check     func(any) bool
}

// Check returns an error carrying the rule message when value fails the rule
func (r Rule) Check(value any) error {
	if IsEmpty(value) {
		if r.skipEmpty {
			return nil
		}
		if value == nil {
			return errors.New(r.Message)
		}
	}

	if r.check != nil {
		if !r.check(value) {
			return errors.New(r.Message)
		}
		return nil
	}

	v := value
	if r.normalize != nil {
		n, err := r.normalize(value)
		if err != nil {
			return errors.New(r.Message)
		}
		v = n
	}

	if err := validate.Var(v, r.tag); err != nil {
		return errors.New(r.Message)
	}
	return nil
}

// IsEmpty reports whether value counts as "not entered": nil, an empty
// string or an empty collection. Zero and false are values.
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Required fails on empty values
func Required() Rule {
	return Rule{Name: "required", Message: "This field is required.", tag: "present"}
}

// Min fails on numeric values below n. Empty values pass.
func Min(n float64) Rule {
	limit := strconv.FormatFloat(n, 'f', -1, 64)
	return Rule{
		Name:      "min",
		Message:   fmt.Sprintf("Ensure this value is greater than or equal to %s.", limit),
		tag:       "gte=" + limit,
		skipEmpty: true,
		normalize: func(v any) (any, error) { return cast.ToFloat64E(v) },
	}
}

// Coercible fails on values that cannot be converted to t. Empty values pass.
func Coercible(t model.ParamType) Rule {
	return Rule{
		Name:      "coercible",
		Message:   typeMessage(t),
		tag:       "coercible=" + string(t),
		skipEmpty: true,
	}
}

// OneOf fails on values outside choices. Values are compared in their string
// form so JSON numbers match numeric choices. Empty values pass.
func OneOf(choices []any) Rule {
	allowed := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		allowed[cast.ToString(c)] = struct{}{}
	}
	return Rule{
		Name:      "choice",
		Message:   fmt.Sprintf("Invalid choice. Available choices are: %v", choices),
		skipEmpty: true,
		check: func(v any) bool {
			s, err := cast.ToStringE(v)
			if err != nil {
				return false
			}
			_, ok := allowed[s]
			return ok
		},
	}
}

// Decimal fails on values that are not decimals fitting digits total digits
// with at most places of them after the point. Empty values pass.
func Decimal(digits, places int32) Rule {
	limit := decimal.New(1, digits-places)
	return Rule{
		Name:      "decimal",
		Message:   fmt.Sprintf("Ensure there are no more than %d digits in total and %d decimal places.", digits, places),
		skipEmpty: true,
		check: func(v any) bool {
			d, err := ParseDecimal(v)
			if err != nil {
				return false
			}
			return d.Abs().LessThan(limit) && d.Exponent() >= -places
		},
	}
}

// ParseDecimal reads a decimal from a form value
func ParseDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		return decimal.NewFromString(d)
	case float64:
		return decimal.NewFromFloat(d), nil
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
}

func typeMessage(t model.ParamType) string {
	switch t {
	case model.ParamTypeInt:
		return "Must be an integer."
	case model.ParamTypeFloat:
		return "Must be a float."
	case model.ParamTypeString:
		return "Must be a string."
	}
	return "Invalid value."
}

func isPresent(fl validator.FieldLevel) bool {
	return !IsEmpty(fl.Field().Interface())
}

func isCoercible(fl validator.FieldLevel) bool {
	_, err := model.ParamType(fl.Param()).Coerce(fl.Field().Interface())
	return err == nil
}

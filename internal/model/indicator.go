package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ParamType is the declared type of an indicator parameter
type ParamType string

const (
	ParamTypeInt    ParamType = "int"
	ParamTypeFloat  ParamType = "float"
	ParamTypeString ParamType = "string"
	ParamTypeChoice ParamType = "choice"
)

// Timeframe is the candle resolution an indicator is computed on
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1MIN"
	Timeframe5Min  Timeframe = "5MIN"
	Timeframe15Min Timeframe = "15MIN"
	Timeframe30Min Timeframe = "30MIN"
	Timeframe1H    Timeframe = "1H"
	Timeframe4H    Timeframe = "4H"
	Timeframe1D    Timeframe = "1D"

	DefaultTimeframe = Timeframe1H
)

// Timeframes lists every timeframe the backend accepts, shortest first
var Timeframes = []Timeframe{
	Timeframe1Min, Timeframe5Min, Timeframe15Min, Timeframe30Min,
	Timeframe1H, Timeframe4H, Timeframe1D,
}

// Indicator represents a technical indicator definition from the backend catalog
type Indicator struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description,omitempty"`
	Parameters  []ParameterSchema `json:"parameters"`
	Lines       []IndicatorLine   `json:"lines"`
}

// IndicatorLine represents one output line of an indicator
type IndicatorLine struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Timeframes  []Timeframe `json:"timeframes,omitempty"`
}

// AppliesTo reports whether the line can be evaluated on tf.
// A line without explicit timeframes applies to all of them.
func (l IndicatorLine) AppliesTo(tf Timeframe) bool {
	if len(l.Timeframes) == 0 {
		return true
	}
	for _, t := range l.Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// ParameterSchema describes one configurable input of an indicator
type ParameterSchema struct {
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Type         ParamType `json:"param_type"`
	Required     bool      `json:"required"`
	DefaultValue *string   `json:"default_value"`
	Choices      []any     `json:"choices,omitempty"`
}

// Default returns the value a freshly built parameter control starts with
func (p ParameterSchema) Default() any {
	if p.DefaultValue == nil {
		return ""
	}
	return *p.DefaultValue
}

// Coerce converts a raw form value to the declared type. Empty numeric values
// become nil; choices are returned unchanged and values of an unknown type are
// sent as strings.
func (t ParamType) Coerce(value any) (any, error) {
	switch t {
	case ParamTypeInt:
		if isBlank(value) {
			return nil, nil
		}
		return toInt(value)
	case ParamTypeFloat:
		if isBlank(value) {
			return nil, nil
		}
		return toFloat(value)
	case ParamTypeString:
		if value == nil {
			return nil, nil
		}
		return cast.ToStringE(value)
	case ParamTypeChoice:
		return value, nil
	default:
		if value == nil {
			return nil, nil
		}
		return cast.ToStringE(value)
	}
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case json.Number:
		return strconv.ParseInt(v.String(), 10, 64)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int64(v), nil
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int64(v), nil
	case bool:
		return 0, fmt.Errorf("unable to cast %v to int", v)
	default:
		return cast.ToInt64E(value)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case json.Number:
		return v.Float64()
	case bool:
		return 0, fmt.Errorf("unable to cast %v to float", v)
	default:
		return cast.ToFloat64E(value)
	}
}

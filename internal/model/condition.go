package model

import "github.com/google/uuid"

// MaxChainConditions is the most conditions the backend accepts on one chain
const MaxChainConditions = 5

// ConditionID identifies a condition for the lifetime of a form, independent
// of its position in the chain
type ConditionID string

// NewConditionID returns a fresh random condition identity
func NewConditionID() ConditionID {
	return ConditionID(uuid.NewString())
}

// ValueType selects what a condition's indicator line is compared against
type ValueType string

const (
	ValueTypeNumber        ValueType = "NUMBER"
	ValueTypePrice         ValueType = "PRICE"
	ValueTypeIndicatorLine ValueType = "INDICATOR_LINE"
)

// Operator is a condition comparison operator
type Operator string

const (
	OperatorGreaterThan Operator = "GT"
	OperatorLessThan    Operator = "LT"
	OperatorEqual       Operator = "EQ"
)

// Condition is one link of an indicator chain
type Condition struct {
	ID         ConditionID
	ServerID   *int
	Position   int
	Indicator  string
	Line       string
	Timeframe  Timeframe
	Operator   Operator
	Parameters map[string]any
	Value      ComparisonValue
}

// ComparisonValue is the right-hand side of a condition.
// Implementations: NumberValue, PriceValue, IndicatorLineValue.
type ComparisonValue interface {
	ValueType() ValueType
}

// NumberValue compares against a literal number as entered by the user
type NumberValue struct {
	Number any
}

// ValueType implements ComparisonValue
func (NumberValue) ValueType() ValueType { return ValueTypeNumber }

// PriceValue compares against the current stock price
type PriceValue struct{}

// ValueType implements ComparisonValue
func (PriceValue) ValueType() ValueType { return ValueTypePrice }

// IndicatorLineValue compares against another indicator's line
type IndicatorLineValue struct {
	Indicator  string
	Line       string
	Timeframe  Timeframe
	Parameters map[string]any
}

// ValueType implements ComparisonValue
func (IndicatorLineValue) ValueType() ValueType { return ValueTypeIndicatorLine }

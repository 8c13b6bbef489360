package alertform

import (
	"fmt"

	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/form"
	"github.com/stockwatch/alert-composer/internal/model"
	"github.com/stockwatch/alert-composer/internal/validator"
)

// Condition field names, matching the wire payload
const (
	FieldPosition           = "position_in_chain"
	FieldIndicator          = "indicator"
	FieldIndicatorLine      = "indicator_line"
	FieldIndicatorTimeframe = "indicator_timeframe"
	FieldOperator           = "condition_operator"
	FieldValueType          = "value_type"
	FieldValueNumber        = "value_number"
	FieldValueIndicator     = "value_indicator"
	FieldValueIndicatorLine = "value_indicator_line"
	FieldValueTimeframe     = "value_timeframe"
	GroupParameters         = "parameters"
	GroupValueParameters    = "value_parameters"
)

// Slot selects which indicator of a condition an operation targets
type Slot int

const (
	// SourceSlot is the indicator whose line is compared
	SourceSlot Slot = iota
	// ValueSlot is the indicator a line is compared against
	ValueSlot
)

func (s Slot) String() string {
	if s == ValueSlot {
		return "value"
	}
	return "source"
}

func (s Slot) indicatorField() string {
	if s == ValueSlot {
		return FieldValueIndicator
	}
	return FieldIndicator
}

func (s Slot) groupName() string {
	if s == ValueSlot {
		return GroupValueParameters
	}
	return GroupParameters
}

// slotState is the resolution state of one indicator selection
type slotState struct {
	lines      []model.IndicatorLine
	schemas    []model.ParameterSchema
	generation uint64
	pending    bool
	// seed holds parameter values loaded from an existing alert; it is used
	// by the first resolution only
	seed map[string]any
}

// ConditionForm is the sub-form of one chained condition. Its identity is
// stable for the lifetime of the form; its position is not.
type ConditionForm struct {
	id       model.ConditionID
	serverID *int
	group    *form.Group
	slots    [2]*slotState
}

// newConditionForm builds a condition at position, seeded from existing
// when editing
func newConditionForm(position int, existing *model.ConditionPayload) *ConditionForm {
	c := &ConditionForm{
		id:    model.NewConditionID(),
		group: form.NewGroup(),
		slots: [2]*slotState{{}, {}},
	}

	var (
		indicator, line, timeframe, operator, valueType string
		valueNumber                                     any = ""
		valueIndicator, valueLine, valueTimeframe       string
	)
	if existing != nil {
		c.serverID = existing.ID
		if existing.PositionInChain > 0 {
			position = existing.PositionInChain
		}
		indicator = existing.Indicator
		if existing.IndicatorLine != nil {
			line = *existing.IndicatorLine
		}
		timeframe = string(existing.IndicatorTimeframe)
		operator = string(existing.ConditionOperator)
		valueType = string(existing.ValueType)
		if existing.ValueNumber != nil {
			valueNumber = existing.ValueNumber
		}
		valueIndicator = existing.ValueIndicator
		valueLine = existing.ValueIndicatorLine
		valueTimeframe = string(existing.ValueTimeframe)
		c.slots[SourceSlot].seed = existing.IndicatorParameters
		c.slots[ValueSlot].seed = existing.ValueIndicatorParameters
	}

	required := validator.Required()
	c.group.Add(FieldPosition, form.NewControl(position, required))
	c.group.Add(FieldIndicator, form.NewControl(indicator, required))
	c.group.Add(FieldIndicatorLine, form.NewControl(line, required))
	c.group.Add(FieldIndicatorTimeframe, form.NewControl(timeframe, required))
	c.group.Add(FieldOperator, form.NewControl(operator, required))
	c.group.Add(FieldValueType, form.NewControl(valueType, required))
	c.group.Add(FieldValueNumber, form.NewControl(valueNumber))
	c.group.Add(FieldValueIndicator, form.NewControl(valueIndicator))
	c.group.Add(FieldValueIndicatorLine, form.NewControl(valueLine))
	c.group.Add(FieldValueTimeframe, form.NewControl(valueTimeframe))
	c.group.Add(GroupParameters, form.NewGroup())
	c.group.Add(GroupValueParameters, form.NewGroup())

	c.applyValueType(model.ValueType(valueType))

	// Selections loaded from an existing alert wait for the catalog.
	if indicator != "" {
		c.slots[SourceSlot].pending = true
	}
	if valueIndicator != "" {
		c.slots[ValueSlot].pending = true
	}
	return c
}

// ID returns the stable identity of the condition
func (c *ConditionForm) ID() model.ConditionID {
	return c.id
}

// ServerID returns the backend id of a condition loaded for editing
func (c *ConditionForm) ServerID() *int {
	return c.serverID
}

// Group exposes the underlying form group
func (c *ConditionForm) Group() *form.Group {
	return c.group
}

// Position returns the 1-based position in the chain
func (c *ConditionForm) Position() int {
	p, _ := c.group.Control(FieldPosition).Value().(int)
	return p
}

func (c *ConditionForm) setPosition(p int) {
	c.group.Control(FieldPosition).SetValue(p)
}

// ValueType returns the selected comparison value type
func (c *ConditionForm) ValueType() model.ValueType {
	return model.ValueType(stringValue(c.group.Control(FieldValueType)))
}

// Lines returns the output lines of the indicator selected in slot
func (c *ConditionForm) Lines(slot Slot) []model.IndicatorLine {
	return c.slots[slot].lines
}

// Schemas returns the parameter schemas of the indicator selected in slot
func (c *ConditionForm) Schemas(slot Slot) []model.ParameterSchema {
	return c.slots[slot].schemas
}

// Parameters returns the parameter sub-form of slot, or nil when the
// selected indicator could not be resolved
func (c *ConditionForm) Parameters(slot Slot) *form.Group {
	return c.group.Group(slot.groupName())
}

// Pending reports whether the selection in slot awaits the catalog
func (c *ConditionForm) Pending(slot Slot) bool {
	return c.slots[slot].pending
}

// Generation returns the selection counter of slot
func (c *ConditionForm) Generation(slot Slot) uint64 {
	return c.slots[slot].generation
}

// SelectIndicator records a new indicator selection for slot and returns its
// generation. With a catalog the selection resolves immediately; without one
// it stays pending until Resolve is called with the same generation.
func (c *ConditionForm) SelectIndicator(slot Slot, name string, cat *catalog.Catalog) uint64 {
	st := c.slots[slot]
	st.generation++
	st.seed = nil
	c.group.Control(slot.indicatorField()).SetValue(name)

	if cat == nil {
		st.pending = true
		st.lines = nil
		st.schemas = nil
		c.group.Add(slot.groupName(), form.NewGroup())
		return st.generation
	}

	ind, found := cat.Resolve(name)
	c.Resolve(slot, st.generation, ind, found)
	return st.generation
}

// Resolve applies a resolution result to slot. Results for a superseded
// generation are dropped and false is returned.
func (c *ConditionForm) Resolve(slot Slot, generation uint64, ind model.Indicator, found bool) bool {
	st := c.slots[slot]
	if generation != st.generation {
		return false
	}
	st.pending = false

	if !found {
		st.lines = nil
		st.schemas = nil
		c.group.Remove(slot.groupName())
		if slot == SourceSlot {
			c.group.Control(FieldIndicatorLine).SetRules(validator.Required())
			c.group.Control(FieldIndicatorLine).UpdateValidity()
		}
		return true
	}

	st.lines = ind.Lines
	st.schemas = ind.Parameters
	c.group.Add(slot.groupName(), c.buildParameters(slot, ind.Parameters, st.seed))
	st.seed = nil

	if slot == SourceSlot {
		// Indicators without output lines are compared on their single value.
		lineCtl := c.group.Control(FieldIndicatorLine)
		if len(ind.Lines) == 0 {
			lineCtl.ClearRules()
		} else {
			lineCtl.SetRules(validator.Required())
		}
		lineCtl.UpdateValidity()
	}
	return true
}

// buildParameters creates a fresh parameter group from schemas. Values come
// from seed when present, otherwise from schema defaults.
func (c *ConditionForm) buildParameters(slot Slot, schemas []model.ParameterSchema, seed map[string]any) *form.Group {
	g := form.NewGroup()
	active := slot == SourceSlot || c.ValueType() == model.ValueTypeIndicatorLine
	for _, s := range schemas {
		value := s.Default()
		if v, ok := seed[s.Name]; ok && v != nil {
			value = v
		}
		var rules []validator.Rule
		if active {
			rules = parameterRules(s)
		}
		g.Add(s.Name, form.NewControl(value, rules...))
	}
	return g
}

func parameterRules(s model.ParameterSchema) []validator.Rule {
	var rules []validator.Rule
	if s.Required {
		rules = append(rules, validator.Required())
	}
	switch s.Type {
	case model.ParamTypeChoice:
		if len(s.Choices) > 0 {
			rules = append(rules, validator.OneOf(s.Choices))
		}
	default:
		rules = append(rules, validator.Coercible(s.Type))
	}
	return rules
}

// SetValueType switches the comparison value variant and recomputes the
// validity of every value field
func (c *ConditionForm) SetValueType(vt model.ValueType) {
	c.group.Control(FieldValueType).SetValue(string(vt))
	c.applyValueType(vt)
}

func (c *ConditionForm) applyValueType(vt model.ValueType) {
	number := c.group.Control(FieldValueNumber)
	indicator := c.group.Control(FieldValueIndicator)
	line := c.group.Control(FieldValueIndicatorLine)
	timeframe := c.group.Control(FieldValueTimeframe)

	for _, ctl := range []*form.Control{number, indicator, line, timeframe} {
		ctl.ClearRules()
	}

	switch vt {
	case model.ValueTypeNumber:
		number.SetRules(validator.Required(), validator.Coercible(model.ParamTypeFloat))
	case model.ValueTypeIndicatorLine:
		indicator.SetRules(validator.Required())
		line.SetRules(validator.Required())
		timeframe.SetRules(validator.Required())
	}

	for _, ctl := range []*form.Control{number, indicator, line, timeframe} {
		ctl.UpdateValidity()
	}

	// Value parameters only constrain the form while they are in use.
	if params := c.group.Group(GroupValueParameters); params != nil {
		active := vt == model.ValueTypeIndicatorLine
		for _, s := range c.slots[ValueSlot].schemas {
			ctl := params.Control(s.Name)
			if ctl == nil {
				continue
			}
			if active {
				ctl.SetRules(parameterRules(s)...)
			} else {
				ctl.ClearRules()
			}
			ctl.UpdateValidity()
		}
	}
}

// SetField sets a plain condition field. Indicator and value type changes
// must go through SelectIndicator and SetValueType.
func (c *ConditionForm) SetField(name string, value any) error {
	switch name {
	case FieldIndicatorLine, FieldIndicatorTimeframe, FieldOperator,
		FieldValueNumber, FieldValueIndicatorLine, FieldValueTimeframe:
		c.group.Control(name).SetValue(value)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, name)
}

// SetParameter sets one parameter value of slot
func (c *ConditionForm) SetParameter(slot Slot, name string, value any) error {
	params := c.Parameters(slot)
	if params == nil || params.Control(name) == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownParameter, slot.groupName(), name)
	}
	params.Control(name).SetValue(value)
	return nil
}

// Valid reports whether every control of the condition passes its rules
func (c *ConditionForm) Valid() bool {
	return c.group.Valid()
}

// Value returns the condition as a domain value with its comparison value
// resolved to the selected variant
func (c *ConditionForm) Value() model.Condition {
	g := c.group
	cond := model.Condition{
		ID:         c.id,
		ServerID:   c.serverID,
		Position:   c.Position(),
		Indicator:  stringValue(g.Control(FieldIndicator)),
		Line:       stringValue(g.Control(FieldIndicatorLine)),
		Timeframe:  model.Timeframe(stringValue(g.Control(FieldIndicatorTimeframe))),
		Operator:   model.Operator(stringValue(g.Control(FieldOperator))),
		Parameters: groupValue(c.Parameters(SourceSlot)),
	}

	switch c.ValueType() {
	case model.ValueTypeNumber:
		cond.Value = model.NumberValue{Number: g.Control(FieldValueNumber).Value()}
	case model.ValueTypePrice:
		cond.Value = model.PriceValue{}
	case model.ValueTypeIndicatorLine:
		cond.Value = model.IndicatorLineValue{
			Indicator:  stringValue(g.Control(FieldValueIndicator)),
			Line:       stringValue(g.Control(FieldValueIndicatorLine)),
			Timeframe:  model.Timeframe(stringValue(g.Control(FieldValueTimeframe))),
			Parameters: groupValue(c.Parameters(ValueSlot)),
		}
	}
	return cond
}

func stringValue(c *form.Control) string {
	if c == nil || c.Value() == nil {
		return ""
	}
	if s, ok := c.Value().(string); ok {
		return s
	}
	return fmt.Sprint(c.Value())
}

func groupValue(g *form.Group) map[string]any {
	if g == nil {
		return map[string]any{}
	}
	return g.Value()
}

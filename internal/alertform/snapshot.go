package alertform

import (
	"github.com/stockwatch/alert-composer/internal/form"
	"github.com/stockwatch/alert-composer/internal/model"
)

// FieldState is the rendered state of one control
type FieldState struct {
	Value    any               `json:"value"`
	Required bool              `json:"required"`
	Touched  bool              `json:"touched,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// ParameterState is a parameter control together with its schema
type ParameterState struct {
	Schema model.ParameterSchema `json:"schema"`
	FieldState
}

// ConditionSnapshot is the rendered state of one condition
type ConditionSnapshot struct {
	ID              model.ConditionID     `json:"id"`
	ServerID        *int                  `json:"server_id,omitempty"`
	Position        int                   `json:"position"`
	Valid           bool                  `json:"valid"`
	Error           string                `json:"error,omitempty"`
	Fields          map[string]FieldState `json:"fields"`
	Lines           []model.IndicatorLine `json:"lines"`
	ValueLines      []model.IndicatorLine `json:"value_lines"`
	Parameters      []ParameterState      `json:"parameters"`
	ValueParameters []ParameterState      `json:"value_parameters"`
	Pending         bool                  `json:"pending,omitempty"`
}

// Snapshot is the rendered state of a whole alert form
type Snapshot struct {
	AlertID    *int                  `json:"alert_id,omitempty"`
	AlertType  model.AlertType       `json:"alert_type"`
	Valid      bool                  `json:"valid"`
	Error      string                `json:"error,omitempty"`
	Fields     map[string]FieldState `json:"fields"`
	Conditions []ConditionSnapshot   `json:"conditions,omitempty"`
	Catalog    bool                  `json:"catalog_loaded"`
}

// Snapshot renders the current form state
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		AlertID:   c.alertID,
		AlertType: c.alertType,
		Valid:     c.Valid(),
		Error:     c.group.ServerError(),
		Fields:    fieldStates(c.group),
		Catalog:   c.catalog != nil,
	}
	for _, cond := range c.conditions {
		s.Conditions = append(s.Conditions, cond.snapshot())
	}
	return s
}

func (c *ConditionForm) snapshot() ConditionSnapshot {
	return ConditionSnapshot{
		ID:              c.id,
		ServerID:        c.serverID,
		Position:        c.Position(),
		Valid:           c.Valid(),
		Error:           c.group.ServerError(),
		Fields:          fieldStates(c.group),
		Lines:           nonNil(c.Lines(SourceSlot)),
		ValueLines:      nonNil(c.Lines(ValueSlot)),
		Parameters:      parameterStates(c.Parameters(SourceSlot), c.Schemas(SourceSlot)),
		ValueParameters: parameterStates(c.Parameters(ValueSlot), c.Schemas(ValueSlot)),
		Pending:         c.Pending(SourceSlot) || c.Pending(ValueSlot),
	}
}

func fieldState(ctl *form.Control) FieldState {
	return FieldState{
		Value:    ctl.Value(),
		Required: ctl.Required(),
		Touched:  ctl.Touched(),
		Errors:   ctl.Errors(),
	}
}

func fieldStates(g *form.Group) map[string]FieldState {
	out := make(map[string]FieldState, g.Len())
	for _, name := range g.Names() {
		if ctl := g.Control(name); ctl != nil {
			out[name] = fieldState(ctl)
		}
	}
	return out
}

func parameterStates(g *form.Group, schemas []model.ParameterSchema) []ParameterState {
	out := []ParameterState{}
	if g == nil {
		return out
	}
	for _, s := range schemas {
		ctl := g.Control(s.Name)
		if ctl == nil {
			continue
		}
		out = append(out, ParameterState{Schema: s, FieldState: fieldState(ctl)})
	}
	return out
}

func nonNil(lines []model.IndicatorLine) []model.IndicatorLine {
	if lines == nil {
		return []model.IndicatorLine{}
	}
	return lines
}

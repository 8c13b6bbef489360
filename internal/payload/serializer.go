// Package payload converts alert form state into backend request bodies.
package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/form"
	"github.com/stockwatch/alert-composer/internal/model"
	"github.com/stockwatch/alert-composer/internal/validator"
)

// Result is a serialized alert together with the identities of its
// conditions in payload order, so that per-index server errors can be
// routed back to the right condition even if the chain changes meanwhile.
type Result struct {
	Payload model.AlertPayload
	Order   []model.ConditionID
}

// Serialize flattens the form into the wire payload of its alert type.
// It does not validate; callers check the form first. An unknown alert type
// is a programming error and is returned as ErrUnknownAlertType.
func Serialize(ctrl *alertform.Controller) (Result, error) {
	g := ctrl.Group()
	res := Result{
		Payload: model.AlertPayload{
			Stock:         stringOf(g.Control(alertform.FieldStock)),
			IsActive:      cast.ToBool(g.Control(alertform.FieldIsActive).Value()),
			CheckInterval: coerce(model.ParamTypeInt, g.Control(alertform.FieldCheckInterval).Value()),
			AlertType:     ctrl.AlertType(),
		},
	}

	switch ctrl.AlertType() {
	case model.AlertTypePrice:
		res.Payload.Price = &model.PricePayload{
			TargetPrice: coerce(model.ParamTypeFloat, g.Control(alertform.FieldTargetPrice).Value()),
			Condition:   stringOf(g.Control(alertform.FieldCondition)),
		}
	case model.AlertTypePercentChange:
		lookback := model.LookbackPeriod(stringOf(g.Control(alertform.FieldLookbackPeriod)))
		pc := &model.PercentChangePayload{
			PercentageChange: percentage(g.Control(alertform.FieldPercentageChange).Value()),
			Direction:        model.Direction(stringOf(g.Control(alertform.FieldDirection))),
			LookbackPeriod:   lookback,
		}
		if lookback == model.LookbackCustom {
			pc.CustomLookbackDays = coerce(model.ParamTypeInt, g.Control(alertform.FieldCustomLookbackDays).Value())
		}
		res.Payload.PercentChange = pc
	case model.AlertTypeIndicatorChain:
		chain := &model.IndicatorChainPayload{Conditions: []model.ConditionPayload{}}
		for _, cond := range ctrl.Conditions() {
			chain.Conditions = append(chain.Conditions, condition(cond))
			res.Order = append(res.Order, cond.ID())
		}
		res.Payload.Chain = chain
	default:
		return Result{}, fmt.Errorf("%w: %q", alertform.ErrUnknownAlertType, ctrl.AlertType())
	}

	return res, nil
}

func condition(cond *alertform.ConditionForm) model.ConditionPayload {
	c := cond.Value()
	out := model.ConditionPayload{
		ID:                  c.ServerID,
		PositionInChain:     c.Position,
		Indicator:           c.Indicator,
		IndicatorTimeframe:  c.Timeframe,
		ConditionOperator:   c.Operator,
		ValueType:           cond.ValueType(),
		IndicatorParameters: parameters(c.Parameters, cond.Schemas(alertform.SourceSlot)),
	}
	if c.Line != "" {
		line := c.Line
		out.IndicatorLine = &line
	}

	switch v := c.Value.(type) {
	case model.NumberValue:
		out.ValueNumber = coerce(model.ParamTypeFloat, v.Number)
	case model.IndicatorLineValue:
		out.ValueIndicator = v.Indicator
		out.ValueIndicatorLine = v.Line
		out.ValueTimeframe = v.Timeframe
		out.ValueIndicatorParameters = parameters(v.Parameters, cond.Schemas(alertform.ValueSlot))
	}
	return out
}

// parameters coerces every declared parameter; undeclared values are dropped
func parameters(values map[string]any, schemas []model.ParameterSchema) map[string]any {
	out := make(map[string]any, len(schemas))
	for _, s := range schemas {
		out[s.Name] = coerce(s.Type, values[s.Name])
	}
	return out
}

// coerce converts v to t, falling back to the raw value when it cannot
func coerce(t model.ParamType, v any) any {
	c, err := t.Coerce(v)
	if err != nil {
		return v
	}
	return c
}

// percentage normalises a percentage to two decimal places
func percentage(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := validator.ParseDecimal(v)
	if err != nil {
		return v
	}
	return d.Round(2)
}

func stringOf(c *form.Control) string {
	switch v := c.Value().(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return cast.ToString(v)
	}
}

package model

import "encoding/json"

// AlertPayload is the wire body for creating or replacing an alert. Exactly
// one of Price, PercentChange or Chain is set, matching AlertType; its fields
// are flattened next to the common ones.
type AlertPayload struct {
	Stock         string
	IsActive      bool
	CheckInterval any
	AlertType     AlertType

	Price         *PricePayload
	PercentChange *PercentChangePayload
	Chain         *IndicatorChainPayload
}

// PricePayload holds the PRICE specific payload fields
type PricePayload struct {
	TargetPrice any    `json:"target_price"`
	Condition   string `json:"condition"`
}

// PercentChangePayload holds the PERCENT_CHANGE specific payload fields.
// CustomLookbackDays is always sent, as null unless the lookback is CUSTOM.
type PercentChangePayload struct {
	PercentageChange   any            `json:"percentage_change"`
	Direction          Direction      `json:"direction"`
	LookbackPeriod     LookbackPeriod `json:"lookback_period"`
	CustomLookbackDays any            `json:"custom_lookback_days"`
}

// IndicatorChainPayload holds the ordered conditions of a chain
type IndicatorChainPayload struct {
	Conditions []ConditionPayload `json:"conditions"`
}

// ConditionPayload is the flat wire shape of a condition. Only the fields of
// the active value variant are populated.
type ConditionPayload struct {
	ID                       *int           `json:"id,omitempty"`
	PositionInChain          int            `json:"position_in_chain"`
	Indicator                string         `json:"indicator"`
	IndicatorLine            *string        `json:"indicator_line"`
	IndicatorTimeframe       Timeframe      `json:"indicator_timeframe"`
	ConditionOperator        Operator       `json:"condition_operator"`
	ValueType                ValueType      `json:"value_type"`
	IndicatorParameters      map[string]any `json:"indicator_parameters"`
	ValueNumber              any            `json:"value_number,omitempty"`
	ValueIndicator           string         `json:"value_indicator,omitempty"`
	ValueIndicatorLine       string         `json:"value_indicator_line,omitempty"`
	ValueTimeframe           Timeframe      `json:"value_timeframe,omitempty"`
	ValueIndicatorParameters map[string]any `json:"value_indicator_parameters,omitempty"`
}

// MarshalJSON always sends value_indicator_parameters for an INDICATOR_LINE
// comparison, as an empty object when the value indicator has no parameters
func (c ConditionPayload) MarshalJSON() ([]byte, error) {
	type plain ConditionPayload
	if c.ValueType != ValueTypeIndicatorLine {
		return json.Marshal(plain(c))
	}
	params := c.ValueIndicatorParameters
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(struct {
		plain
		ValueIndicatorParameters map[string]any `json:"value_indicator_parameters"`
	}{plain(c), params})
}

type payloadBase struct {
	Stock         string    `json:"stock"`
	IsActive      bool      `json:"is_active"`
	CheckInterval any       `json:"check_interval"`
	AlertType     AlertType `json:"alert_type"`
}

// MarshalJSON flattens the active type-specific section into the body
func (p AlertPayload) MarshalJSON() ([]byte, error) {
	base := payloadBase{
		Stock:         p.Stock,
		IsActive:      p.IsActive,
		CheckInterval: p.CheckInterval,
		AlertType:     p.AlertType,
	}

	switch {
	case p.Price != nil:
		return json.Marshal(struct {
			payloadBase
			*PricePayload
		}{base, p.Price})
	case p.PercentChange != nil:
		return json.Marshal(struct {
			payloadBase
			*PercentChangePayload
		}{base, p.PercentChange})
	case p.Chain != nil:
		return json.Marshal(struct {
			payloadBase
			*IndicatorChainPayload
		}{base, p.Chain})
	default:
		return json.Marshal(base)
	}
}

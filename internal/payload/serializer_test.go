package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/model"
)

func strPtr(s string) *string { return &s }

func testCatalog() *catalog.Catalog {
	return catalog.New([]model.Indicator{
		{
			Name:  "RSI",
			Lines: []model.IndicatorLine{{Name: "rsi"}},
			Parameters: []model.ParameterSchema{
				{Name: "length", Type: model.ParamTypeInt, Required: true},
			},
		},
		{
			Name:  "BB",
			Lines: []model.IndicatorLine{{Name: "upper"}, {Name: "lower"}},
			Parameters: []model.ParameterSchema{
				{Name: "length", Type: model.ParamTypeInt, Required: true, DefaultValue: strPtr("20")},
				{Name: "stddev", Type: model.ParamTypeFloat, DefaultValue: strPtr("2.0")},
				{Name: "source", Type: model.ParamTypeChoice, Choices: []any{"close", "hl2"}, DefaultValue: strPtr("close")},
				{Name: "mode", Type: model.ParamType("matrix"), DefaultValue: strPtr("fast")},
			},
		},
		{
			Name:  "VWAP",
			Lines: []model.IndicatorLine{{Name: "vwap"}},
		},
	})
}

func toMap(t *testing.T, p model.AlertPayload) map[string]any {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestSerializePriceAlert(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	require.NoError(t, ctrl.SetField(alertform.FieldTargetPrice, "150"))
	require.NoError(t, ctrl.SetField(alertform.FieldCondition, "ABOVE"))
	require.NoError(t, ctrl.SetField(alertform.FieldCheckInterval, 60))
	require.True(t, ctrl.Valid())

	res, err := Serialize(ctrl)
	require.NoError(t, err)
	assert.Empty(t, res.Order)

	assert.Equal(t, map[string]any{
		"stock":          "AAPL",
		"is_active":      true,
		"check_interval": 60.0,
		"alert_type":     "PRICE",
		"target_price":   150.0,
		"condition":      "ABOVE",
	}, toMap(t, res.Payload))
}

func TestSerializePercentChange(t *testing.T) {
	ctrl := alertform.NewController("TSLA")
	require.NoError(t, ctrl.SetAlertType(model.AlertTypePercentChange))
	require.NoError(t, ctrl.SetField(alertform.FieldPercentageChange, "5.25"))
	require.NoError(t, ctrl.SetField(alertform.FieldDirection, "DOWN"))
	ctrl.SetLookbackPeriod(model.Lookback1Week)

	m := toMap(t, mustSerialize(t, ctrl).Payload)
	assert.Equal(t, "5.25", m["percentage_change"])
	assert.Equal(t, "DOWN", m["direction"])
	assert.Equal(t, "1W", m["lookback_period"])
	assert.Contains(t, m, "custom_lookback_days")
	assert.Nil(t, m["custom_lookback_days"])
	assert.NotContains(t, m, "target_price")

	ctrl.SetLookbackPeriod(model.LookbackCustom)
	require.NoError(t, ctrl.SetField(alertform.FieldCustomLookbackDays, "10"))
	m = toMap(t, mustSerialize(t, ctrl).Payload)
	assert.Equal(t, 10.0, m["custom_lookback_days"])
}

func mustSerialize(t *testing.T, ctrl *alertform.Controller) Result {
	t.Helper()
	res, err := Serialize(ctrl)
	require.NoError(t, err)
	return res
}

func TestSerializeNumberCondition(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(testCatalog())
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	cond := ctrl.Conditions()[0]

	cond.SelectIndicator(alertform.SourceSlot, "RSI", ctrl.Catalog())
	require.NoError(t, cond.SetParameter(alertform.SourceSlot, "length", "400"))
	require.NoError(t, cond.SetField(alertform.FieldIndicatorLine, "rsi"))
	require.NoError(t, cond.SetField(alertform.FieldIndicatorTimeframe, "1H"))
	require.NoError(t, cond.SetField(alertform.FieldOperator, "GT"))
	cond.SetValueType(model.ValueTypeNumber)
	require.NoError(t, cond.SetField(alertform.FieldValueNumber, "42.5"))
	require.NoError(t, cond.SetField(alertform.FieldValueTimeframe, "4H"))
	require.True(t, ctrl.Valid(), "%v", ctrl.Err())

	res := mustSerialize(t, ctrl)
	require.Equal(t, []model.ConditionID{cond.ID()}, res.Order)

	c := res.Payload.Chain.Conditions[0]
	assert.Equal(t, 42.5, c.ValueNumber)
	assert.Equal(t, int64(400), c.IndicatorParameters["length"])

	m := toMap(t, res.Payload)
	conds := m["conditions"].([]any)
	require.Len(t, conds, 1)
	wire := conds[0].(map[string]any)
	assert.Equal(t, 42.5, wire["value_number"])
	assert.Equal(t, 1.0, wire["position_in_chain"])
	assert.Equal(t, "rsi", wire["indicator_line"])
	assert.Equal(t, map[string]any{"length": 400.0}, wire["indicator_parameters"])
	for _, absent := range []string{"value_indicator", "value_indicator_line", "value_timeframe", "value_indicator_parameters", "id"} {
		assert.NotContains(t, wire, absent)
	}
}

func TestSerializeIndicatorLineCondition(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(testCatalog())
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	cond := ctrl.Conditions()[0]

	cond.SelectIndicator(alertform.SourceSlot, "RSI", ctrl.Catalog())
	require.NoError(t, cond.SetParameter(alertform.SourceSlot, "length", "14"))
	cond.SetValueType(model.ValueTypeIndicatorLine)
	require.NoError(t, cond.SetField(alertform.FieldValueNumber, "7"))
	cond.SelectIndicator(alertform.ValueSlot, "BB", ctrl.Catalog())
	require.NoError(t, cond.SetField(alertform.FieldValueIndicatorLine, "upper"))
	require.NoError(t, cond.SetField(alertform.FieldValueTimeframe, "1D"))
	require.NoError(t, cond.SetParameter(alertform.ValueSlot, "stddev", "2.5"))

	c := mustSerialize(t, ctrl).Payload.Chain.Conditions[0]
	assert.Nil(t, c.ValueNumber, "number variant is not serialized")
	assert.Nil(t, c.IndicatorLine, "empty line is sent as null")
	assert.Equal(t, "BB", c.ValueIndicator)
	assert.Equal(t, "upper", c.ValueIndicatorLine)
	assert.Equal(t, model.Timeframe("1D"), c.ValueTimeframe)
	assert.Equal(t, map[string]any{
		"length": int64(20),
		"stddev": 2.5,
		"source": "close",
		"mode":   "fast",
	}, c.ValueIndicatorParameters)
	assert.Equal(t, map[string]any{"length": int64(14)}, c.IndicatorParameters)
}

func TestSerializeIndicatorLineWithoutValueParameters(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(testCatalog())
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	cond := ctrl.Conditions()[0]

	cond.SelectIndicator(alertform.SourceSlot, "RSI", ctrl.Catalog())
	require.NoError(t, cond.SetParameter(alertform.SourceSlot, "length", "14"))
	cond.SetValueType(model.ValueTypeIndicatorLine)
	cond.SelectIndicator(alertform.ValueSlot, "VWAP", ctrl.Catalog())
	require.NoError(t, cond.SetField(alertform.FieldValueIndicatorLine, "vwap"))
	require.NoError(t, cond.SetField(alertform.FieldValueTimeframe, "1D"))

	wire := toMap(t, mustSerialize(t, ctrl).Payload)["conditions"].([]any)[0].(map[string]any)
	require.Contains(t, wire, "value_indicator_parameters")
	assert.Equal(t, map[string]any{}, wire["value_indicator_parameters"])
	assert.Equal(t, "VWAP", wire["value_indicator"])
}

func TestSerializeUnknownParameterTypeAsString(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(testCatalog())
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	cond := ctrl.Conditions()[0]
	cond.SelectIndicator(alertform.SourceSlot, "BB", ctrl.Catalog())

	c := mustSerialize(t, ctrl).Payload.Chain.Conditions[0]
	assert.Equal(t, "fast", c.IndicatorParameters["mode"])
	assert.Equal(t, "close", c.IndicatorParameters["source"], "choices are sent as selected")

	require.NoError(t, cond.SetParameter(alertform.SourceSlot, "mode", 3.5))
	c = mustSerialize(t, ctrl).Payload.Chain.Conditions[0]
	assert.Equal(t, "3.5", c.IndicatorParameters["mode"])

	coerced, err := model.ParamType("matrix").Coerce(nil)
	require.NoError(t, err)
	assert.Nil(t, coerced)
}

func TestSerializeKeepsUncoercibleValues(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(testCatalog())
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	cond := ctrl.Conditions()[0]
	cond.SelectIndicator(alertform.SourceSlot, "RSI", ctrl.Catalog())
	require.NoError(t, cond.SetParameter(alertform.SourceSlot, "length", "long"))

	c := mustSerialize(t, ctrl).Payload.Chain.Conditions[0]
	assert.Equal(t, "long", c.IndicatorParameters["length"])
}

func TestSerializeUnresolvedIndicatorSendsNoParameters(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(testCatalog())
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	cond := ctrl.Conditions()[0]
	cond.SelectIndicator(alertform.SourceSlot, "UNKNOWN", ctrl.Catalog())

	c := mustSerialize(t, ctrl).Payload.Chain.Conditions[0]
	assert.Equal(t, map[string]any{}, c.IndicatorParameters)
}

func TestSerializeEditCarriesConditionIDs(t *testing.T) {
	serverID := 100
	detail := &model.AlertDetail{
		ID:        42,
		Stock:     "AAPL",
		AlertType: model.AlertTypeIndicatorChain,
		IsActive:  true,
		IndicatorChainAlert: &model.IndicatorChainDetail{
			Conditions: []model.ConditionPayload{{
				ID:                 &serverID,
				PositionInChain:    1,
				Indicator:          "RSI",
				IndicatorLine:      strPtr("rsi"),
				IndicatorTimeframe: "1H",
				ConditionOperator:  "LT",
				ValueType:          model.ValueTypeNumber,
				ValueNumber:        30.0,
			}},
		},
	}
	ctrl, err := alertform.NewEditController(detail)
	require.NoError(t, err)
	ctrl.SetCatalog(testCatalog())

	m := toMap(t, mustSerialize(t, ctrl).Payload)
	wire := m["conditions"].([]any)[0].(map[string]any)
	assert.Equal(t, 100.0, wire["id"])
	assert.Equal(t, 30.0, wire["value_number"])
}

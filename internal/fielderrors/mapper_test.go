package fielderrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/model"
)

func chainForm(t *testing.T, n int) *alertform.Controller {
	t.Helper()
	ctrl := alertform.NewController("AAPL")
	ctrl.SetCatalog(catalog.New([]model.Indicator{{
		Name:  "RSI",
		Lines: []model.IndicatorLine{{Name: "rsi"}},
		Parameters: []model.ParameterSchema{
			{Name: "length", Type: model.ParamTypeInt, Required: true},
		},
	}}))
	require.NoError(t, ctrl.SetAlertType(model.AlertTypeIndicatorChain))
	for i := 1; i < n; i++ {
		_, err := ctrl.AddCondition()
		require.NoError(t, err)
	}
	for _, cond := range ctrl.Conditions() {
		cond.SelectIndicator(alertform.SourceSlot, "RSI", ctrl.Catalog())
		cond.SelectIndicator(alertform.ValueSlot, "RSI", ctrl.Catalog())
	}
	return ctrl
}

func ids(ctrl *alertform.Controller) []model.ConditionID {
	var out []model.ConditionID
	for _, c := range ctrl.Conditions() {
		out = append(out, c.ID())
	}
	return out
}

func TestApplyNestedParameterError(t *testing.T) {
	ctrl := chainForm(t, 2)
	body := []byte(`{"conditions": {"0": {"indicator_parameters": {"length": ["Maximum allowed length is 400."]}}}}`)

	res := Apply(ctrl, ids(ctrl), body, nil)

	assert.Equal(t, 1, res.Applied)
	assert.Empty(t, res.Unmatched)
	first := ctrl.Conditions()[0]
	assert.Equal(t, "Maximum allowed length is 400.", first.Parameters(alertform.SourceSlot).Control("length").ServerError())
	assert.Empty(t, ctrl.Conditions()[1].Parameters(alertform.SourceSlot).Control("length").ServerError())
	assert.False(t, ctrl.Valid())
}

func TestApplyTopLevelFields(t *testing.T) {
	ctrl := alertform.NewController("AAPL")
	body := []byte(`{
		"target_price": ["A valid number is required.", "Ensure this value is positive."],
		"check_interval": "Ensure this value is greater than or equal to 1.",
		"unknown_field": ["ignored"]
	}`)

	res := Apply(ctrl, nil, body, nil)

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, []string{"unknown_field"}, res.Unmatched)
	g := ctrl.Group()
	assert.Equal(t, "A valid number is required. Ensure this value is positive.", g.Control(alertform.FieldTargetPrice).ServerError())
	assert.Equal(t, "Ensure this value is greater than or equal to 1.", g.Control(alertform.FieldCheckInterval).ServerError())
}

func TestApplyDetail(t *testing.T) {
	ctrl := alertform.NewController("AAPL")

	res := Apply(ctrl, nil, []byte(`{"detail": "You have reached the maximum number of alerts for your plan."}`), nil)
	assert.Equal(t, "You have reached the maximum number of alerts for your plan.", res.Detail)
	assert.Zero(t, res.Applied)

	res = Apply(ctrl, nil, []byte(`["Stock not found."]`), nil)
	assert.Equal(t, "Stock not found.", res.Detail)
}

func TestApplyConditionArrayAndFields(t *testing.T) {
	ctrl := chainForm(t, 3)
	body := []byte(`{"conditions": [
		{},
		{"condition_operator": ["\"GTE\" is not a valid choice."], "length": "Maximum allowed length is 400."},
		["This condition is invalid."]
	]}`)

	res := Apply(ctrl, ids(ctrl), body, nil)

	assert.Equal(t, 3, res.Applied)
	conds := ctrl.Conditions()
	assert.True(t, conds[0].Group().Control(alertform.FieldOperator).ServerError() == "")
	assert.Equal(t, `"GTE" is not a valid choice.`, conds[1].Group().Control(alertform.FieldOperator).ServerError())
	assert.Equal(t, "Maximum allowed length is 400.", conds[1].Parameters(alertform.SourceSlot).Control("length").ServerError())
	assert.Equal(t, "This condition is invalid.", conds[2].Group().ServerError())
}

func TestApplyValueParameters(t *testing.T) {
	ctrl := chainForm(t, 1)
	body := []byte(`{"conditions": {"0": {"value_indicator_parameters": {"length": ["Too long."], "period": ["Unknown."]}}}}`)

	res := Apply(ctrl, ids(ctrl), body, nil)

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, []string{"conditions.0.value_indicator_parameters.period"}, res.Unmatched)
	assert.Equal(t, "Too long.", ctrl.Conditions()[0].Parameters(alertform.ValueSlot).Control("length").ServerError())
}

func TestApplyFollowsConditionIdentity(t *testing.T) {
	ctrl := chainForm(t, 3)
	order := ids(ctrl)
	third := ctrl.Conditions()[2]

	// the first condition is removed while the request is in flight
	require.NoError(t, ctrl.RemoveCondition(order[0]))

	res := Apply(ctrl, order, []byte(`{"conditions": {"2": {"indicator_line": ["Invalid line."]}, "0": {"indicator": ["Unknown."]}}}`), nil)

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, []string{"conditions.0"}, res.Unmatched)
	assert.Equal(t, "Invalid line.", third.Group().Control(alertform.FieldIndicatorLine).ServerError())
	assert.Equal(t, 2, third.Position())
}

func TestApplyOutOfRangeAndChainLevel(t *testing.T) {
	ctrl := chainForm(t, 1)

	res := Apply(ctrl, ids(ctrl), []byte(`{"conditions": {"7": {"indicator": ["x"]}, "first": {}}}`), nil)
	assert.ElementsMatch(t, []string{"conditions.7", "conditions.first"}, res.Unmatched)

	res = Apply(ctrl, ids(ctrl), []byte(`{"conditions": ["An indicator chain must have at least one condition."]}`), nil)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, "An indicator chain must have at least one condition.", ctrl.Group().ServerError())

	ctrl.ClearServerErrors()
	assert.Empty(t, ctrl.Group().ServerError())
}

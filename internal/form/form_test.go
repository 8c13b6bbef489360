package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/stockwatch/alert-composer/internal/validator"
)

func TestControlValidity(t *testing.T) {
	c := NewControl("", validator.Required())
	assert.False(t, c.Valid())
	assert.Equal(t, map[string]string{"required": "This field is required."}, c.Errors())

	c.SetValue("14")
	assert.True(t, c.Valid())
	assert.Nil(t, c.Errors())
}

func TestControlRulesApplyOnUpdate(t *testing.T) {
	c := NewControl(nil)
	require.True(t, c.Valid())

	c.SetRules(validator.Required())
	assert.True(t, c.Valid(), "new rules take effect on the next validity update")
	assert.True(t, c.Required())

	c.UpdateValidity()
	assert.False(t, c.Valid())

	c.ClearRules()
	c.UpdateValidity()
	assert.True(t, c.Valid())
	assert.False(t, c.Required())
}

func TestControlServerErrorClearedByEdit(t *testing.T) {
	c := NewControl("500")
	c.SetServerError("Maximum allowed length is 400.")
	assert.False(t, c.Valid())
	assert.Equal(t, "Maximum allowed length is 400.", c.Errors()[ServerErrorKey])

	c.SetValue("200")
	assert.True(t, c.Valid())
	assert.Empty(t, c.ServerError())
}

func TestGroupOrderAndReplace(t *testing.T) {
	g := NewGroup()
	g.Add("length", NewControl("14"))
	g.Add("source", NewControl("close"))
	g.Add("length", NewControl("20"))

	assert.Equal(t, []string{"length", "source"}, g.Names())
	assert.Equal(t, "20", g.Control("length").Value())

	g.Remove("length")
	assert.Equal(t, []string{"source"}, g.Names())
	assert.Nil(t, g.Control("length"))
	assert.False(t, g.Has("length"))
}

func TestGroupFindAndErrors(t *testing.T) {
	params := NewGroup()
	params.Add("length", NewControl("", validator.Required()))

	root := NewGroup()
	root.Add("indicator", NewControl("RSI", validator.Required()))
	root.Add("parameters", params)

	found, ok := root.Find("parameters.length").(*Control)
	require.True(t, ok)
	assert.Same(t, params.Control("length"), found)
	assert.Nil(t, root.Find("parameters.missing"))
	assert.Nil(t, root.Find("indicator.length"))

	assert.False(t, root.Valid())
	errs := root.Errors()
	assert.Len(t, errs, 1)
	assert.Contains(t, errs, "parameters.length")

	err := root.Err()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.EqualError(t, err, "parameters.length: This field is required.")

	params.Control("length").SetValue("14")
	assert.True(t, root.Valid())
	assert.NoError(t, root.Err())
}

func TestGroupServerErrors(t *testing.T) {
	root := NewGroup()
	root.Add("stock", NewControl("AAPL"))
	root.SetServerError("Your subscription plan does not allow Indicator Chain alerts.")
	root.Control("stock").SetServerError("Invalid symbol.")

	assert.False(t, root.Valid())
	root.ClearServerErrors()
	assert.True(t, root.Valid())
}

func TestGroupValueNests(t *testing.T) {
	params := NewGroup()
	params.Add("length", NewControl("14"))
	root := NewGroup()
	root.Add("indicator", NewControl("RSI"))
	root.Add("parameters", params)

	assert.Equal(t, map[string]any{
		"indicator":  "RSI",
		"parameters": map[string]any{"length": "14"},
	}, root.Value())
}

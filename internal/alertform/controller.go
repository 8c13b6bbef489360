package alertform

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/form"
	"github.com/stockwatch/alert-composer/internal/model"
	"github.com/stockwatch/alert-composer/internal/validator"
)

// Alert field names, matching the wire payload
const (
	FieldStock              = "stock"
	FieldAlertType          = "alert_type"
	FieldIsActive           = "is_active"
	FieldCheckInterval      = "check_interval"
	FieldTargetPrice        = "target_price"
	FieldCondition          = "condition"
	FieldPercentageChange   = "percentage_change"
	FieldDirection          = "direction"
	FieldLookbackPeriod     = "lookback_period"
	FieldCustomLookbackDays = "custom_lookback_days"
	FieldConditions         = "conditions"
)

// typeFields are the fields whose rules depend on the alert type
var typeFields = []string{
	FieldTargetPrice,
	FieldCondition,
	FieldPercentageChange,
	FieldDirection,
	FieldLookbackPeriod,
	FieldCustomLookbackDays,
	FieldCheckInterval,
}

// Controller is the root form of one alert. It owns the condition collection;
// conditions are only reachable through it.
type Controller struct {
	group      *form.Group
	conditions []*ConditionForm
	catalog    *catalog.Catalog
	alertType  model.AlertType
	alertID    *int
}

// NewController creates the form for a new alert on stock. The form starts
// as a PRICE alert.
func NewController(stock string) *Controller {
	c := &Controller{alertType: model.AlertTypePrice}

	g := form.NewGroup()
	g.Add(FieldStock, form.NewControl(stock, validator.Required()))
	g.Add(FieldAlertType, form.NewControl(string(model.AlertTypePrice), validator.Required()))
	g.Add(FieldIsActive, form.NewControl(true))
	g.Add(FieldCheckInterval, form.NewControl(model.DefaultCheckInterval))
	g.Add(FieldTargetPrice, form.NewControl(""))
	g.Add(FieldCondition, form.NewControl(""))
	g.Add(FieldPercentageChange, form.NewControl(""))
	g.Add(FieldDirection, form.NewControl(string(model.DirectionUp)))
	g.Add(FieldLookbackPeriod, form.NewControl(""))
	g.Add(FieldCustomLookbackDays, form.NewControl(nil))
	c.group = g

	c.applyTypeRules(model.AlertTypePrice)
	return c
}

// NewEditController creates the form for an existing alert. The alert type
// of an existing alert is fixed.
func NewEditController(detail *model.AlertDetail) (*Controller, error) {
	if !detail.AlertType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlertType, detail.AlertType)
	}

	c := NewController(detail.Stock)
	id := detail.ID
	c.alertID = &id
	c.alertType = detail.AlertType
	c.group.Control(FieldAlertType).SetValue(string(detail.AlertType))
	c.group.Control(FieldIsActive).SetValue(detail.IsActive)
	c.group.Control(FieldCheckInterval).SetValue(detail.CheckInterval())

	switch detail.AlertType {
	case model.AlertTypePrice:
		if p := detail.PriceTargetAlert; p != nil {
			c.group.Control(FieldTargetPrice).SetValue(p.TargetPrice)
			c.group.Control(FieldCondition).SetValue(p.Condition)
		}
	case model.AlertTypePercentChange:
		if p := detail.PercentageChangeAlert; p != nil {
			c.group.Control(FieldPercentageChange).SetValue(p.PercentageChange.StringFixed(2))
			c.group.Control(FieldDirection).SetValue(string(p.Direction))
			c.group.Control(FieldLookbackPeriod).SetValue(string(p.LookbackPeriod))
			if p.CustomLookbackDays != nil {
				c.group.Control(FieldCustomLookbackDays).SetValue(*p.CustomLookbackDays)
			}
		}
	case model.AlertTypeIndicatorChain:
		if p := detail.IndicatorChainAlert; p != nil {
			for i := range p.Conditions {
				c.conditions = append(c.conditions, newConditionForm(i+1, &p.Conditions[i]))
			}
		}
	}

	c.clearTypeRules()
	c.applyTypeRules(detail.AlertType)
	return c, nil
}

// Group exposes the root form group. Conditions are not part of it.
func (c *Controller) Group() *form.Group {
	return c.group
}

// AlertType returns the current alert type
func (c *Controller) AlertType() model.AlertType {
	return c.alertType
}

// AlertID returns the id of the alert being edited, nil for a new alert
func (c *Controller) AlertID() *int {
	return c.alertID
}

// Editing reports whether the form edits an existing alert
func (c *Controller) Editing() bool {
	return c.alertID != nil
}

// Catalog returns the catalog used for indicator resolution, nil until loaded
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// SetCatalog installs the indicator catalog and resolves every selection
// that was waiting for it
func (c *Controller) SetCatalog(cat *catalog.Catalog) {
	c.catalog = cat
	for _, cond := range c.conditions {
		for _, slot := range []Slot{SourceSlot, ValueSlot} {
			if !cond.Pending(slot) {
				continue
			}
			name := stringValue(cond.Group().Control(slot.indicatorField()))
			ind, found := cat.Resolve(name)
			cond.Resolve(slot, cond.Generation(slot), ind, found)
		}
	}
}

// SetAlertType transitions the form to t. Every transition clears the rules
// of type specific fields, drops all conditions and applies the rules of the
// new type; entering INDICATOR_CHAIN seeds one empty condition. Setting the
// current type again is a no-op.
func (c *Controller) SetAlertType(t model.AlertType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlertType, t)
	}
	if t == c.alertType {
		return nil
	}
	if c.Editing() {
		return ErrAlertTypeLocked
	}

	c.clearTypeRules()
	c.conditions = nil

	c.alertType = t
	c.group.Control(FieldAlertType).SetValue(string(t))
	c.applyTypeRules(t)

	if t == model.AlertTypeIndicatorChain && len(c.conditions) == 0 {
		c.conditions = append(c.conditions, newConditionForm(1, nil))
	}
	return nil
}

func (c *Controller) clearTypeRules() {
	for _, name := range typeFields {
		ctl := c.group.Control(name)
		ctl.ClearRules()
		ctl.UpdateValidity()
	}
}

func (c *Controller) applyTypeRules(t model.AlertType) {
	g := c.group
	g.Control(FieldCheckInterval).SetRules(validator.Required(), validator.Min(1))

	switch t {
	case model.AlertTypePrice:
		g.Control(FieldTargetPrice).SetRules(validator.Required(), validator.Coercible(model.ParamTypeFloat))
		g.Control(FieldCondition).SetRules(validator.Required())
	case model.AlertTypePercentChange:
		g.Control(FieldPercentageChange).SetRules(validator.Required(), validator.Decimal(5, 2))
		g.Control(FieldDirection).SetRules(validator.Required())
		g.Control(FieldLookbackPeriod).SetRules(validator.Required())
	}

	for _, name := range typeFields {
		g.Control(name).UpdateValidity()
	}
	if t == model.AlertTypePercentChange {
		c.applyLookback(model.LookbackPeriod(stringValue(g.Control(FieldLookbackPeriod))))
	}
}

// SetLookbackPeriod sets the lookback of a PERCENT_CHANGE alert. CUSTOM makes
// custom_lookback_days required and at least 1; any other value clears it.
func (c *Controller) SetLookbackPeriod(p model.LookbackPeriod) {
	c.group.Control(FieldLookbackPeriod).SetValue(string(p))
	if c.alertType == model.AlertTypePercentChange {
		c.applyLookback(p)
	}
}

func (c *Controller) applyLookback(p model.LookbackPeriod) {
	days := c.group.Control(FieldCustomLookbackDays)
	if p == model.LookbackCustom {
		days.SetRules(validator.Required(), validator.Coercible(model.ParamTypeInt), validator.Min(1))
		days.UpdateValidity()
		return
	}
	days.ClearRules()
	days.SetValue(nil)
}

// SetField sets a top level field by its wire name
func (c *Controller) SetField(name string, value any) error {
	switch name {
	case FieldAlertType:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %v", ErrUnknownAlertType, value)
		}
		return c.SetAlertType(model.AlertType(s))
	case FieldLookbackPeriod:
		s, _ := value.(string)
		c.SetLookbackPeriod(model.LookbackPeriod(s))
		return nil
	case FieldStock:
		if c.Editing() {
			return fmt.Errorf("%w: %s cannot be changed on an existing alert", ErrUnknownField, name)
		}
		c.group.Control(name).SetValue(value)
		return nil
	case FieldIsActive, FieldCheckInterval, FieldTargetPrice, FieldCondition,
		FieldPercentageChange, FieldDirection, FieldCustomLookbackDays:
		c.group.Control(name).SetValue(value)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, name)
}

// Conditions returns the conditions in chain order
func (c *Controller) Conditions() []*ConditionForm {
	return append([]*ConditionForm(nil), c.conditions...)
}

// Condition finds a condition by identity
func (c *Controller) Condition(id model.ConditionID) (*ConditionForm, bool) {
	for _, cond := range c.conditions {
		if cond.ID() == id {
			return cond, true
		}
	}
	return nil, false
}

// AddCondition appends an empty condition at the end of the chain
func (c *Controller) AddCondition() (*ConditionForm, error) {
	if c.alertType != model.AlertTypeIndicatorChain {
		return nil, ErrNotChain
	}
	if len(c.conditions) >= model.MaxChainConditions {
		return nil, ErrChainFull
	}
	cond := newConditionForm(len(c.conditions)+1, nil)
	c.conditions = append(c.conditions, cond)
	return cond, nil
}

// RemoveCondition deletes a condition and renumbers the rest 1..N in order
func (c *Controller) RemoveCondition(id model.ConditionID) error {
	for i, cond := range c.conditions {
		if cond.ID() != id {
			continue
		}
		c.conditions = append(c.conditions[:i], c.conditions[i+1:]...)
		for j, rest := range c.conditions {
			rest.setPosition(j + 1)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConditionNotFound, id)
}

// SelectIndicator changes the indicator of a condition slot. It returns the
// selection generation and whether resolution is still pending.
func (c *Controller) SelectIndicator(id model.ConditionID, slot Slot, name string) (uint64, bool, error) {
	cond, ok := c.Condition(id)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", ErrConditionNotFound, id)
	}
	gen := cond.SelectIndicator(slot, name, c.catalog)
	return gen, cond.Pending(slot), nil
}

// CompleteResolution applies an asynchronously resolved indicator to the
// condition with the given identity. It returns false when the condition was
// removed or its selection changed since dispatch.
func (c *Controller) CompleteResolution(id model.ConditionID, slot Slot, generation uint64, ind model.Indicator, found bool) bool {
	cond, ok := c.Condition(id)
	if !ok {
		return false
	}
	return cond.Resolve(slot, generation, ind, found)
}

// MarkAllTouched marks every control of the form as touched
func (c *Controller) MarkAllTouched() {
	c.group.MarkAllTouched()
	for _, cond := range c.conditions {
		cond.Group().MarkAllTouched()
	}
}

// ClearServerErrors drops every backend message attached to the form
func (c *Controller) ClearServerErrors() {
	c.group.ClearServerErrors()
	for _, cond := range c.conditions {
		cond.Group().ClearServerErrors()
	}
}

// Valid reports whether the form can be submitted
func (c *Controller) Valid() bool {
	return c.Err() == nil
}

// Err aggregates every local validation problem, nil when the form is valid.
// A condition whose indicator selection is still pending counts as invalid.
func (c *Controller) Err() error {
	err := c.group.Err()
	if c.alertType != model.AlertTypeIndicatorChain {
		return err
	}
	if len(c.conditions) == 0 {
		err = multierr.Append(err, ErrNoConditions)
	}
	for i, cond := range c.conditions {
		for _, e := range multierr.Errors(cond.Group().Err()) {
			err = multierr.Append(err, fmt.Errorf("%s[%d]: %w", FieldConditions, i, e))
		}
		// Parameters of an unresolved selection are neither validated nor
		// serializable, so the form cannot be sent until it resolves.
		if cond.Pending(SourceSlot) || (cond.ValueType() == model.ValueTypeIndicatorLine && cond.Pending(ValueSlot)) {
			err = multierr.Append(err, fmt.Errorf("%s[%d]: %w", FieldConditions, i, ErrIndicatorLoading))
		}
	}
	return err
}

package form

import (
	"github.com/stockwatch/alert-composer/internal/validator"
)

// ServerErrorKey is the error key under which backend messages are stored
const ServerErrorKey = "server"

// Node is an element of a form tree
type Node interface {
	Valid() bool
	MarkAllTouched()
	ClearServerErrors()
}

// Control holds a single form value and the rules it must satisfy.
// Errors are recomputed whenever the value changes or UpdateValidity is called;
// recomputation discards any server error.
type Control struct {
	value       any
	rules       []validator.Rule
	errors      map[string]string
	serverError string
	touched     bool
}

// NewControl creates a control and computes its initial validity
func NewControl(value any, rules ...validator.Rule) *Control {
	c := &Control{value: value, rules: rules}
	c.UpdateValidity()
	return c
}

// Value returns the current raw value
func (c *Control) Value() any {
	return c.value
}

// SetValue replaces the value and recomputes validity
func (c *Control) SetValue(value any) {
	c.value = value
	c.UpdateValidity()
}

// SetRules replaces the rule set. Validity is not recomputed until
// UpdateValidity or SetValue is called.
func (c *Control) SetRules(rules ...validator.Rule) {
	c.rules = rules
}

// ClearRules removes every rule
func (c *Control) ClearRules() {
	c.rules = nil
}

// HasRule reports whether a rule with the given name is attached
func (c *Control) HasRule(name string) bool {
	for _, r := range c.rules {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Required reports whether the control currently carries the required rule
func (c *Control) Required() bool {
	return c.HasRule("required")
}

// UpdateValidity re-runs every rule against the current value
func (c *Control) UpdateValidity() {
	c.serverError = ""
	c.errors = nil
	for _, r := range c.rules {
		if err := r.Check(c.value); err != nil {
			if c.errors == nil {
				c.errors = make(map[string]string)
			}
			c.errors[r.Name] = err.Error()
		}
	}
}

// SetServerError attaches a backend message to the control
func (c *Control) SetServerError(msg string) {
	c.serverError = msg
}

// ClearServerErrors implements Node
func (c *Control) ClearServerErrors() {
	c.serverError = ""
}

// ServerError returns the backend message attached to the control, if any
func (c *Control) ServerError() string {
	return c.serverError
}

// Errors returns rule failures keyed by rule name, plus the server message
// under ServerErrorKey. Nil when the control is valid.
func (c *Control) Errors() map[string]string {
	if c.Valid() {
		return nil
	}
	out := make(map[string]string, len(c.errors)+1)
	for k, v := range c.errors {
		out[k] = v
	}
	if c.serverError != "" {
		out[ServerErrorKey] = c.serverError
	}
	return out
}

// Valid implements Node
func (c *Control) Valid() bool {
	return len(c.errors) == 0 && c.serverError == ""
}

// MarkAllTouched implements Node
func (c *Control) MarkAllTouched() {
	c.touched = true
}

// Touched reports whether the control was marked as touched
func (c *Control) Touched() bool {
	return c.touched
}

// Package fielderrors attaches backend validation errors to the form controls
// that produced them.
package fielderrors

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/form"
	"github.com/stockwatch/alert-composer/internal/model"
)

// Keys the backend uses for errors that belong to no single field
const (
	keyDetail         = "detail"
	keyNonFieldErrors = "non_field_errors"
	keyParameters     = "indicator_parameters"
	keyValueParams    = "value_indicator_parameters"
)

// Result summarises how an error body was applied
type Result struct {
	// Applied counts the messages attached to a control or group
	Applied int `json:"applied"`
	// Unmatched lists the paths of messages that matched nothing
	Unmatched []string `json:"unmatched,omitempty"`
	// Detail is a message for the form as a whole
	Detail string `json:"detail,omitempty"`
}

type mapper struct {
	ctrl   *alertform.Controller
	order  []model.ConditionID
	logger *zap.Logger
	res    Result
}

// Apply walks a 400 response body and attaches every message it can place.
// order holds the condition identities in the order they were serialized, so
// that index keys address the condition that was sent even when the chain has
// changed since. Unplaceable messages are logged and listed, never attached.
func Apply(ctrl *alertform.Controller, order []model.ConditionID, body []byte, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &mapper{ctrl: ctrl, order: order, logger: logger}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsObject():
		root.ForEach(func(key, value gjson.Result) bool {
			m.top(key.String(), value)
			return true
		})
	case root.IsArray() || root.Type == gjson.String:
		m.res.Detail = join(root)
	default:
		m.unmatched("$")
	}
	return m.res
}

func (m *mapper) top(key string, value gjson.Result) {
	switch key {
	case keyDetail, keyNonFieldErrors:
		m.res.Detail = strings.TrimSpace(strings.Join([]string{m.res.Detail, join(value)}, " "))
		return
	case alertform.FieldConditions:
		m.conditions(value)
		return
	}
	if ctl := m.ctrl.Group().Control(key); ctl != nil {
		m.attach(ctl, value)
		return
	}
	m.unmatched(key)
}

func (m *mapper) conditions(value gjson.Result) {
	if isMessages(value) {
		m.ctrl.Group().SetServerError(join(value))
		m.res.Applied++
		return
	}
	switch {
	case value.IsArray():
		for i, item := range value.Array() {
			m.condition(i, item)
		}
	case value.IsObject():
		value.ForEach(func(key, item gjson.Result) bool {
			i, err := strconv.Atoi(key.String())
			if err != nil {
				m.unmatched(alertform.FieldConditions + "." + key.String())
				return true
			}
			m.condition(i, item)
			return true
		})
	default:
		m.unmatched(alertform.FieldConditions)
	}
}

// lookup finds the condition serialized at index i, falling back to the
// current position when no order was recorded
func (m *mapper) lookup(i int) (*alertform.ConditionForm, bool) {
	if i < 0 {
		return nil, false
	}
	if m.order != nil {
		if i >= len(m.order) {
			return nil, false
		}
		return m.ctrl.Condition(m.order[i])
	}
	conds := m.ctrl.Conditions()
	if i >= len(conds) {
		return nil, false
	}
	return conds[i], true
}

func (m *mapper) condition(i int, value gjson.Result) {
	path := alertform.FieldConditions + "." + strconv.Itoa(i)
	// DRF sends {} for conditions without errors
	if value.IsObject() && len(value.Map()) == 0 {
		return
	}
	cond, ok := m.lookup(i)
	if !ok {
		m.unmatched(path)
		return
	}
	if isMessages(value) {
		cond.Group().SetServerError(join(value))
		m.res.Applied++
		return
	}
	if !value.IsObject() {
		m.unmatched(path)
		return
	}

	value.ForEach(func(key, item gjson.Result) bool {
		name := key.String()
		switch {
		case name == keyNonFieldErrors:
			cond.Group().SetServerError(join(item))
			m.res.Applied++
		case name == keyParameters:
			m.parameters(cond.Parameters(alertform.SourceSlot), path+"."+name, item)
		case name == keyValueParams:
			m.parameters(cond.Parameters(alertform.ValueSlot), path+"."+name, item)
		case cond.Group().Control(name) != nil:
			m.attach(cond.Group().Control(name), item)
		case cond.Parameters(alertform.SourceSlot) != nil && cond.Parameters(alertform.SourceSlot).Control(name) != nil:
			// the backend reports parameter errors keyed by the bare name
			m.attach(cond.Parameters(alertform.SourceSlot).Control(name), item)
		default:
			m.unmatched(path + "." + name)
		}
		return true
	})
}

func (m *mapper) parameters(g *form.Group, path string, value gjson.Result) {
	if g == nil {
		m.unmatched(path)
		return
	}
	if isMessages(value) {
		g.SetServerError(join(value))
		m.res.Applied++
		return
	}
	value.ForEach(func(key, item gjson.Result) bool {
		if ctl := g.Control(key.String()); ctl != nil {
			m.attach(ctl, item)
		} else {
			m.unmatched(path + "." + key.String())
		}
		return true
	})
}

func (m *mapper) attach(ctl *form.Control, value gjson.Result) {
	ctl.SetServerError(join(value))
	m.res.Applied++
}

func (m *mapper) unmatched(path string) {
	m.logger.Debug("Dropping unmatched server error", zap.String("path", path))
	m.res.Unmatched = append(m.res.Unmatched, path)
}

// isMessages reports whether value is a message or a flat list of messages
func isMessages(value gjson.Result) bool {
	if value.Type == gjson.String {
		return true
	}
	if !value.IsArray() {
		return false
	}
	items := value.Array()
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Type != gjson.String {
			return false
		}
	}
	return true
}

// join renders every message found in value separated by a single space
func join(value gjson.Result) string {
	var parts []string
	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.IsArray() || v.IsObject():
			v.ForEach(func(_, item gjson.Result) bool {
				walk(item)
				return true
			})
		case v.Type == gjson.Null:
		default:
			if s := strings.TrimSpace(v.String()); s != "" {
				parts = append(parts, s)
			}
		}
	}
	walk(value)
	return strings.Join(parts, " ")
}

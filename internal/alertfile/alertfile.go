// Package alertfile reads alert definitions written in YAML and applies them to
// an alert form, so alerts can be created and edited without the HTTP API.
//
//	stock: AAPL
//	alert_type: INDICATOR_CHAIN
//	check_interval: 15
//	conditions:
//	  - indicator: RSI
//	    indicator_line: rsi
//	    indicator_timeframe: 1H
//	    parameters: {length: 14}
//	    condition_operator: GT
//	    value_type: NUMBER
//	    value_number: 70
package alertfile

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/model"
)

// Definition is an alert as written in a file. Top level keys other than
// stock, alert_type and conditions are form fields.
type Definition struct {
	Stock      string         `yaml:"stock"`
	AlertType  string         `yaml:"alert_type"`
	Conditions []Condition    `yaml:"conditions"`
	Fields     map[string]any `yaml:",inline"`
}

// Condition is one chain condition as written in a file. Keys other than the
// indicator selections and parameter maps are condition fields.
type Condition struct {
	Indicator       string         `yaml:"indicator"`
	Parameters      map[string]any `yaml:"parameters"`
	ValueType       string         `yaml:"value_type"`
	ValueIndicator  string         `yaml:"value_indicator"`
	ValueParameters map[string]any `yaml:"value_parameters"`
	Fields          map[string]any `yaml:",inline"`
}

// Parse decodes a definition
func Parse(r io.Reader) (*Definition, error) {
	var def Definition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("alert definition is empty")
		}
		return nil, fmt.Errorf("failed to parse alert definition: %w", err)
	}
	return &def, nil
}

// Apply writes def onto ctrl. The controller should already hold the
// indicator catalog; selections made without one stay pending.
//
// Conditions are matched by position. When def lists conditions, existing
// conditions beyond its length are removed; when it lists none the chain is
// left as it is.
func Apply(ctrl *alertform.Controller, def *Definition) error {
	if def.AlertType != "" {
		if err := ctrl.SetAlertType(model.AlertType(def.AlertType)); err != nil {
			return err
		}
	}
	if def.Stock != "" && !ctrl.Editing() {
		if err := ctrl.SetField(alertform.FieldStock, def.Stock); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(def.Fields, alertform.FieldLookbackPeriod) {
		if err := ctrl.SetField(name, def.Fields[name]); err != nil {
			return err
		}
	}

	if len(def.Conditions) == 0 {
		return nil
	}
	if ctrl.AlertType() != model.AlertTypeIndicatorChain {
		return alertform.ErrNotChain
	}

	for i, entry := range def.Conditions {
		conditions := ctrl.Conditions()
		var cond *alertform.ConditionForm
		if i < len(conditions) {
			cond = conditions[i]
		} else {
			added, err := ctrl.AddCondition()
			if err != nil {
				return err
			}
			cond = added
		}
		if err := applyCondition(ctrl, cond, entry); err != nil {
			return fmt.Errorf("%s[%d]: %w", alertform.FieldConditions, i+1, err)
		}
	}

	for _, extra := range ctrl.Conditions()[len(def.Conditions):] {
		if err := ctrl.RemoveCondition(extra.ID()); err != nil {
			return err
		}
	}
	return nil
}

func applyCondition(ctrl *alertform.Controller, cond *alertform.ConditionForm, entry Condition) error {
	if entry.ValueType != "" {
		cond.SetValueType(model.ValueType(entry.ValueType))
	}

	if entry.Indicator != "" {
		if _, _, err := ctrl.SelectIndicator(cond.ID(), alertform.SourceSlot, entry.Indicator); err != nil {
			return err
		}
	}
	if entry.ValueIndicator != "" {
		if _, _, err := ctrl.SelectIndicator(cond.ID(), alertform.ValueSlot, entry.ValueIndicator); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(entry.Fields) {
		if err := cond.SetField(name, entry.Fields[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(entry.Parameters) {
		if err := cond.SetParameter(alertform.SourceSlot, name, entry.Parameters[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(entry.ValueParameters) {
		if err := cond.SetParameter(alertform.ValueSlot, name, entry.ValueParameters[name]); err != nil {
			return err
		}
	}
	return nil
}

// sortedKeys returns the keys of m in name order with first leading
func sortedKeys(m map[string]any, first ...string) []string {
	var keys []string
	for _, name := range first {
		if _, ok := m[name]; ok {
			keys = append(keys, name)
		}
	}
	var rest []string
	for name := range m {
		if !contains(first, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Report lists every error message of a rendered form, one line per message,
// prefixed with the path of the control it belongs to
func Report(s alertform.Snapshot) []string {
	var lines []string
	if s.Error != "" {
		lines = append(lines, s.Error)
	}
	lines = append(lines, fieldLines("", s.Fields)...)

	for _, cond := range s.Conditions {
		prefix := fmt.Sprintf("%s[%d]", alertform.FieldConditions, cond.Position)
		if cond.Error != "" {
			lines = append(lines, prefix+": "+cond.Error)
		}
		lines = append(lines, fieldLines(prefix+".", cond.Fields)...)
		lines = append(lines, parameterLines(prefix+".indicator_parameters.", cond.Parameters)...)
		lines = append(lines, parameterLines(prefix+".value_indicator_parameters.", cond.ValueParameters)...)
	}
	return lines
}

func fieldLines(prefix string, fields map[string]alertform.FieldState) []string {
	var lines []string
	for _, name := range sortedFieldNames(fields) {
		lines = append(lines, errorLines(prefix+name, fields[name].Errors)...)
	}
	return lines
}

func parameterLines(prefix string, params []alertform.ParameterState) []string {
	var lines []string
	for _, p := range params {
		lines = append(lines, errorLines(prefix+p.Schema.Name, p.Errors)...)
	}
	return lines
}

func errorLines(path string, errs map[string]string) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, path+": "+errs[k])
	}
	return lines
}

func sortedFieldNames(fields map[string]alertform.FieldState) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

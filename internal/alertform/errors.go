package alertform

import "errors"

var (
	// ErrUnknownAlertType is returned for alert types outside PRICE,
	// PERCENT_CHANGE and INDICATOR_CHAIN
	ErrUnknownAlertType = errors.New("unknown alert type")
	// ErrAlertTypeLocked is returned when changing the type of an existing alert
	ErrAlertTypeLocked = errors.New("alert type cannot be changed on an existing alert")
	// ErrChainFull is returned when adding a condition beyond the chain limit
	ErrChainFull = errors.New("indicator chain already has the maximum number of conditions")
	// ErrNotChain is returned for condition operations on non-chain alerts
	ErrNotChain = errors.New("conditions are only available on indicator chain alerts")
	// ErrConditionNotFound is returned for unknown condition ids
	ErrConditionNotFound = errors.New("condition not found")
	// ErrUnknownField is returned when setting a field the form does not have
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownParameter is returned when setting a parameter the selected
	// indicator does not declare
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrNoConditions is reported by validation of an empty chain
	ErrNoConditions = errors.New("conditions: at least one condition is required")
	// ErrIndicatorLoading is reported by validation while a selected
	// indicator still waits for the catalog
	ErrIndicatorLoading = errors.New("indicator is still loading")
)

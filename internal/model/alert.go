package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType discriminates the three alert kinds
type AlertType string

const (
	AlertTypePrice          AlertType = "PRICE"
	AlertTypePercentChange  AlertType = "PERCENT_CHANGE"
	AlertTypeIndicatorChain AlertType = "INDICATOR_CHAIN"
)

// Valid reports whether t is one of the known alert types
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypePrice, AlertTypePercentChange, AlertTypeIndicatorChain:
		return true
	}
	return false
}

// Direction of a percentage change alert
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// LookbackPeriod is the window a percentage change is measured against
type LookbackPeriod string

const (
	Lookback1Day   LookbackPeriod = "1D"
	Lookback1Week  LookbackPeriod = "1W"
	Lookback1Month LookbackPeriod = "1M"
	Lookback1Year  LookbackPeriod = "1Y"
	LookbackCustom LookbackPeriod = "CUSTOM"
)

// Price target conditions accepted by the backend
const (
	PriceConditionAbove = "GT"
	PriceConditionBelow = "LT"
)

// DefaultCheckInterval is the check interval, in minutes, of a new alert
const DefaultCheckInterval = 60

// CheckIntervals are the check interval presets offered to users, in minutes
var CheckIntervals = []int{1, 5, 15, 30, 60, 1440}

// Stock represents a listed stock
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// AlertDetail is an alert as returned by the backend. Exactly one of the
// type-specific sections is set, matching AlertType.
type AlertDetail struct {
	ID                    int                     `json:"id"`
	Stock                 string                  `json:"stock"`
	StockDetails          *Stock                  `json:"stock_details,omitempty"`
	AlertType             AlertType               `json:"alert_type"`
	IsActive              bool                    `json:"is_active"`
	CreatedAt             *time.Time              `json:"created_at,omitempty"`
	LastTriggeredAt       *time.Time              `json:"last_triggered_at,omitempty"`
	PriceTargetAlert      *PriceTargetDetail      `json:"price_target_alert,omitempty"`
	PercentageChangeAlert *PercentageChangeDetail `json:"percentage_change_alert,omitempty"`
	IndicatorChainAlert   *IndicatorChainDetail   `json:"indicator_chain_alert,omitempty"`
}

// PriceTargetDetail holds the PRICE specific fields of an alert
type PriceTargetDetail struct {
	ID            int     `json:"id"`
	TargetPrice   float64 `json:"target_price"`
	Condition     string  `json:"condition"`
	CheckInterval *int    `json:"check_interval"`
}

// PercentageChangeDetail holds the PERCENT_CHANGE specific fields of an alert
type PercentageChangeDetail struct {
	ID                 int             `json:"id"`
	PercentageChange   decimal.Decimal `json:"percentage_change"`
	Direction          Direction       `json:"direction"`
	LookbackPeriod     LookbackPeriod  `json:"lookback_period"`
	CustomLookbackDays *int            `json:"custom_lookback_days"`
	CheckInterval      *int            `json:"check_interval"`
}

// IndicatorChainDetail holds the INDICATOR_CHAIN specific fields of an alert
type IndicatorChainDetail struct {
	ID            int                `json:"id"`
	CheckInterval *int               `json:"check_interval"`
	Conditions    []ConditionPayload `json:"conditions"`
}

// CheckInterval returns the check interval stored with the type-specific section
func (a *AlertDetail) CheckInterval() int {
	var interval *int
	switch {
	case a.PriceTargetAlert != nil:
		interval = a.PriceTargetAlert.CheckInterval
	case a.PercentageChangeAlert != nil:
		interval = a.PercentageChangeAlert.CheckInterval
	case a.IndicatorChainAlert != nil:
		interval = a.IndicatorChainAlert.CheckInterval
	}
	if interval == nil {
		return DefaultCheckInterval
	}
	return *interval
}

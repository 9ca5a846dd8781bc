package model

import (
	"strings"

	"main/internal/model/enum"
)

// Signal is a proposed trade intent. It stays mutable until execution;
// ownership follows the pipeline (strategy, risk, execution) with a
// single writer at each stage.
type Signal struct {
	TraceID        string
	Type           enum.SignalType
	Symbol         string
	Price          float64
	Quantity       float64
	Leverage       int
	RiskPercentage float64
	StopLoss       float64
	TakeProfits    []TakeProfitLevel
	Category       enum.Category
	ReduceOnly     bool
	Reason         string
	Strategy       string
}

// TakeProfitLevel is one rung of a partial take-profit ladder.
// QuantityPct is a fraction of the original position size. A level
// fires at most once.
type TakeProfitLevel struct {
	Price       float64
	QuantityPct float64
	Reason      string
	Consumed    bool
}

// Quality extracts the coarse confidence tag embedded in the reason
// text ("Type A"/"Type B"/"Type C"). Higher is better; 0 means untagged.
func (s *Signal) Quality() int {
	switch {
	case strings.Contains(s.Reason, "Type A"):
		return 3
	case strings.Contains(s.Reason, "Type B"):
		return 2
	case strings.Contains(s.Reason, "Type C"):
		return 1
	default:
		return 0
	}
}

// Side maps the signal type onto an order side.
func (s *Signal) Side() enum.OrderSide {
	if s.Type == enum.SignalSell {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

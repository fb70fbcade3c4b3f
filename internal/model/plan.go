package model

import "math"

// Direction is +1 for long and -1 for short.
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// ScanRow is one market projection produced by the external planner.
type ScanRow struct {
	Symbol      string  `json:"symbol"`
	Granularity int     `json:"granularity_minutes"`
	Direction   int     `json:"direction"`
	ProbUp      float64 `json:"prob_up"`
	ProbDown    float64 `json:"prob_down"`
	Expectancy  float64 `json:"expectancy"`
	Price       float64 `json:"price"`
}

// TradePlan is a candidate order proposed by the external planner.
type TradePlan struct {
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Strategy  string    `json:"strategy"`
	Direction Direction `json:"direction"`
	Quantity  float64   `json:"quantity"`
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	Note      string    `json:"note"`
}

// Risk is the amount lost if the plan is stopped out: |entry-stop| * quantity.
func (p TradePlan) Risk() float64 {
	return math.Abs(p.Entry-p.Stop) * p.Quantity
}

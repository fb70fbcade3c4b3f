package model

import "time"

// Trade audit statuses.
const (
	TradeExecuted = "executed"
	TradeFailed   = "failed"
)

// TradeRecord is one audit entry in the trade history. Opens carry no
// realized result; protective closes carry RealizedPnL and Close=true.
type TradeRecord struct {
	ID          string      `json:"id"`
	Time        time.Time   `json:"time"`
	AccountID   string      `json:"account_id"`
	ProfileID   string      `json:"profile_id"`
	Scope       string      `json:"scope"`
	Mode        AccountMode `json:"mode"`
	Symbol      string      `json:"symbol"`
	Strategy    string      `json:"strategy"`
	Direction   Direction   `json:"direction"`
	Quantity    float64     `json:"quantity"`
	Entry       float64     `json:"entry"`
	Stop        float64     `json:"stop"`
	Target      float64     `json:"target"`
	ExitPrice   float64     `json:"exit_price,omitempty"`
	Status      string      `json:"status"`
	Result      string      `json:"result"`
	RealizedPnL *float64    `json:"realized_pnl,omitempty"`
	Close       bool        `json:"close"`
	Note        string      `json:"note"`
}

// Executed reports whether the broker accepted the order.
func (r TradeRecord) Executed() bool {
	return r.Status == TradeExecuted
}

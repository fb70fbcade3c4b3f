package model

import "time"

// PaperPosition is a synthetic open position held for a non-live account.
type PaperPosition struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Strategy  string    `json:"strategy"`
	Direction Direction `json:"direction"`
	Quantity  float64   `json:"quantity"`
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	OpenedAt  time.Time `json:"opened_at"`
	Scope     string    `json:"scope"`
}

// Touched reports whether price has reached the stop or the target.
func (p PaperPosition) Touched(price float64) bool {
	if p.Direction == Short {
		return (p.Stop > 0 && price >= p.Stop) || (p.Target > 0 && price <= p.Target)
	}
	return (p.Stop > 0 && price <= p.Stop) || (p.Target > 0 && price >= p.Target)
}

// PnLAt returns the P&L of a full close at price, oriented by direction.
func (p PaperPosition) PnLAt(price float64) float64 {
	return (price - p.Entry) * p.Quantity * float64(p.Direction)
}

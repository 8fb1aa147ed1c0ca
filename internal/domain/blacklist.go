package domain

import "time"

// BlacklistReason names the counter an event increments.
type BlacklistReason string

const (
	ReasonNone       BlacklistReason = ""
	ReasonTakeProfit BlacklistReason = "take_profit"
	ReasonStopLoss   BlacklistReason = "stop_loss"
	ReasonProfit     BlacklistReason = "profit"
	ReasonLoss       BlacklistReason = "loss"
)

// BlacklistEntry is the cooldown state of one base asset.
type BlacklistEntry struct {
	Symbol          string    `json:"symbol"`
	BaseAsset       string    `json:"base_asset"`
	Close           float64   `json:"close"`
	TakeProfitCount int       `json:"take_profit_count"`
	StopLossCount   int       `json:"stop_loss_count"`
	ProfitCount     int       `json:"profit_count"`
	LossCount       int       `json:"loss_count"`
	EnteredAt       time.Time `json:"entered_at"`
}

// Count returns the counter matching reason.
func (e BlacklistEntry) Count(reason BlacklistReason) int {
	switch reason {
	case ReasonTakeProfit:
		return e.TakeProfitCount
	case ReasonStopLoss:
		return e.StopLossCount
	case ReasonProfit:
		return e.ProfitCount
	case ReasonLoss:
		return e.LossCount
	}
	return 0
}

package models

import "github.com/shopspring/decimal"

// OrderRequest carries the parameters of a bracket order
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	StopLoss decimal.Decimal `json:"stop_loss"`
	Target   decimal.Decimal `json:"target"`
}

// OrderResult reports whether the gateway accepted an order
type OrderResult struct {
	Placed  bool   `json:"placed"`
	OrderID string `json:"order_id,omitempty"`
}

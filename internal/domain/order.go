package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the gateway's view of an order after submission.
type OrderStatus string

const (
	OrderStatusLive     OrderStatus = "LIVE"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusPartial  OrderStatus = "PARTIAL"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// OrderAck is the gateway acknowledgement for a submitted limit order.
type OrderAck struct {
	OrderID string
	Status  OrderStatus
}

// GatewayPosition is one row of the gateway's positions endpoint.
type GatewayPosition struct {
	TokenID  string
	Shares   float64
	AvgPrice float64
}

// Bankroll is the gateway's view of available balance.
type Bankroll struct {
	AvailableUSD float64
	TotalUSD     float64
}

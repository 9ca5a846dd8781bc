package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "Buy"
	case OrderSideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

// OrderStatus new, partial filled, filled, canceled, rejected
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusNew
	OrderStatusPartialFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

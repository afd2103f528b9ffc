package domain

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusPaid       OrderStatus = "paid"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCompleted  OrderStatus = "completed"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusReturned   OrderStatus = "returned"
	StatusFailed     OrderStatus = "failed"
)

// Category tells whether stock is held by an order in a given status.
type Category int

const (
	CategoryNone Category = iota
	CategoryHolding
	CategoryReleasing
)

func (c Category) String() string {
	switch c {
	case CategoryHolding:
		return "holding"
	case CategoryReleasing:
		return "releasing"
	default:
		return "none"
	}
}

var holding = map[OrderStatus]struct{}{
	StatusPending:    {},
	StatusPaid:       {},
	StatusProcessing: {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCompleted:  {},
	StatusConfirmed:  {},
}

var releasing = map[OrderStatus]struct{}{
	StatusCancelled: {},
	StatusReturned:  {},
	StatusFailed:    {},
}

func CategoryOf(s OrderStatus) Category {
	if _, ok := holding[s]; ok {
		return CategoryHolding
	}
	if _, ok := releasing[s]; ok {
		return CategoryReleasing
	}
	return CategoryNone
}

// StockDelta is the stock movement a status transition requires.
type StockDelta string

const (
	DeltaNone     StockDelta = "none"
	DeltaIncrease StockDelta = "increase"
	DeltaDecrease StockDelta = "decrease"
)

// ComputeStockDelta classifies a transition. It depends only on the two
// statuses; whether enough stock exists is checked when the delta is applied.
func ComputeStockDelta(oldStatus, newStatus OrderStatus) StockDelta {
	from, to := CategoryOf(oldStatus), CategoryOf(newStatus)
	switch {
	case from == CategoryReleasing && to == CategoryHolding:
		return DeltaDecrease
	case from == CategoryHolding && to == CategoryReleasing:
		return DeltaIncrease
	default:
		return DeltaNone
	}
}

package enum

// EventKind discriminates payload types on the event bus.
//
// EventAny is a subscription wildcard: a handler registered for EventAny
// receives every published event.
type EventKind uint8

const (
	EventAny EventKind = iota
	EventMarketData
	EventKline
	EventOrderUpdate
	EventTradeClosed
	EventSentiment
	EventRegime
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k < _event_kind_end
}

func (k EventKind) String() string {
	switch k {
	case EventAny:
		return "any"
	case EventMarketData:
		return "market_data"
	case EventKline:
		return "kline"
	case EventOrderUpdate:
		return "order_update"
	case EventTradeClosed:
		return "trade_closed"
	case EventSentiment:
		return "sentiment"
	case EventRegime:
		return "regime"
	default:
		return "unknown"
	}
}

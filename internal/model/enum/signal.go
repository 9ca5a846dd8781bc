package enum

// SignalType buy, sell, hold
type SignalType uint8

const (
	_signal_type_beg SignalType = iota
	SignalBuy
	SignalSell
	SignalHold
	_signal_type_end
)

func (t SignalType) IsAvailable() bool {
	return t > _signal_type_beg && t < _signal_type_end
}

func (t SignalType) String() string {
	switch t {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Category spot, linear
type Category uint8

const (
	_category_beg Category = iota
	CategorySpot
	CategoryLinear
	_category_end
)

func (c Category) IsAvailable() bool {
	return c > _category_beg && c < _category_end
}

func (c Category) String() string {
	switch c {
	case CategorySpot:
		return "spot"
	case CategoryLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// ExecutionType real, paper
type ExecutionType uint8

const (
	_execution_type_beg ExecutionType = iota
	ExecutionReal
	ExecutionPaper
	_execution_type_end
)

func (t ExecutionType) IsAvailable() bool {
	return t > _execution_type_beg && t < _execution_type_end
}

func (t ExecutionType) String() string {
	switch t {
	case ExecutionReal:
		return "REAL"
	case ExecutionPaper:
		return "PAPER"
	default:
		return "UNKNOWN"
	}
}

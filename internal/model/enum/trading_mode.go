package enum

// TradingMode reflects account health. It is derived from the equity
// ratio and loss-day count, never set directly.
type TradingMode uint8

const (
	ModeNormal TradingMode = iota
	ModeRecovery
	ModeEmergencyStop
)

func (m TradingMode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeRecovery:
		return "RECOVERY"
	case ModeEmergencyStop:
		return "EMERGENCY_STOP"
	default:
		return "UNKNOWN"
	}
}

// Regime is the classified market condition feeding strategy
// activation and sizing.
type Regime uint8

const (
	RegimeUnknown Regime = iota
	RegimeTrending
	RegimeRanging
	RegimeVolatile
)

func (r Regime) String() string {
	switch r {
	case RegimeTrending:
		return "trending"
	case RegimeRanging:
		return "ranging"
	case RegimeVolatile:
		return "volatile"
	default:
		return "unknown"
	}
}

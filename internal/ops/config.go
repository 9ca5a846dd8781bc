package ops

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"main/internal/model/enum"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Engine   EngineConfig   `json:"engine"`
	Risk     RiskConfig     `json:"risk"`
	Symbols  []SymbolConfig `json:"symbols"`
	Exchange ExchangeConfig `json:"exchange"`
	Database DatabaseConfig `json:"database"`
	Alert    AlertConfig    `json:"alert"`
}

// EngineConfig describes runtime wiring.
type EngineConfig struct {
	Simulation       bool     `json:"simulation"`
	Symbols          []string `json:"symbols"`
	Interval         string   `json:"interval"`
	WarmupBars       int      `json:"warmupBars"`
	BusCapacity      int      `json:"busCapacity"`
	RegimeRefreshSec int      `json:"regimeRefreshSec"`
	MetricsAddr      string   `json:"metricsAddr"`
	PaperBalance     float64  `json:"paperBalance"`
}

// RiskConfig supplies the risk profile. Percentages are fractions
// (0.02 = 2%).
type RiskConfig struct {
	MaxDailyLoss       float64  `json:"maxDailyLoss"`
	MaxPositionSize    float64  `json:"maxPositionSize"`
	RiskPerTrade       float64  `json:"riskPerTrade"`
	MaxLossPerTrade    float64  `json:"maxLossPerTrade"`
	MaxLeverage        int      `json:"maxLeverage"`
	GlobalMaxLeverage  int      `json:"globalMaxLeverage"`
	StopLossPct        float64  `json:"stopLossPct"`
	TakeProfitPct      float64  `json:"takeProfitPct"`
	TrailingTriggerPct float64  `json:"trailingTriggerPct"`
	TrailingDelaySec   int      `json:"trailingDelaySec"`
	MinHoldSec         int      `json:"minHoldSec"`
	CooldownSec        int      `json:"cooldownSec"`
	MinOrderNotional   float64  `json:"minOrderNotional"`
	PerExitLossCap     float64  `json:"perExitLossCap"`
	MaxOpenPositions   int      `json:"maxOpenPositions"`
	EmergencyRatio     float64  `json:"emergencyRatio"`
	RecoveryRatio      float64  `json:"recoveryRatio"`
	RecoveryExitRatio  float64  `json:"recoveryExitRatio"`
	RecoveryCapPct     float64  `json:"recoveryCapPct"`
	ReplaceProfitPct   float64  `json:"replaceProfitPct"`
	ReplaceLossPct     float64  `json:"replaceLossPct"`
	SymbolBlacklist    []string `json:"symbolBlacklist"`
	BlackoutHoursUTC   []int    `json:"blackoutHoursUTC"`
	CorrelationGroups  [][]string `json:"correlationGroups"`
}

// SymbolConfig describes one tradable instrument.
type SymbolConfig struct {
	Name        string  `json:"name"`
	QtyDecimals int     `json:"qtyDecimals"`
	MinQty      float64 `json:"minQty"`
	PriceMin    float64 `json:"priceMin"`
	PriceMax    float64 `json:"priceMax"`
}

// ExchangeConfig holds endpoints; credentials come from the
// environment.
type ExchangeConfig struct {
	BaseURL      string `json:"baseUrl"`
	WsPublicURL  string `json:"wsPublicUrl"`
	WsPrivateURL string `json:"wsPrivateUrl"`
	RecvWindowMs int    `json:"recvWindowMs"`
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// AlertConfig holds the outbound webhook settings.
type AlertConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

// Credentials are read from the environment (.env supported).
type Credentials struct {
	APIKey    string
	APISecret string
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Engine      EngineConfig
	Risk        RiskConfig
	Symbols     map[string]SymbolConfig
	Exchange    ExchangeConfig
	Database    DatabaseConfig
	Alert       AlertConfig
	Credentials Credentials
	Mode        enum.ExecutionType
}

// Load reads a JSON config file, applies defaults and pulls
// credentials from the environment.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	applyDefaults(&cfg)
	if len(cfg.Engine.Symbols) == 0 {
		return Loaded{}, fmt.Errorf("engine symbols are empty")
	}
	symbols := make(map[string]SymbolConfig, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		if sym.Name == "" {
			return Loaded{}, fmt.Errorf("symbol name is empty")
		}
		if sym.QtyDecimals < 0 {
			return Loaded{}, fmt.Errorf("invalid qtyDecimals for %s", sym.Name)
		}
		symbols[sym.Name] = sym
	}
	for _, name := range cfg.Engine.Symbols {
		if _, ok := symbols[name]; !ok {
			return Loaded{}, fmt.Errorf("engine symbol has no spec: %s", name)
		}
	}
	for _, group := range cfg.Risk.CorrelationGroups {
		if len(group) < 2 {
			return Loaded{}, fmt.Errorf("correlation group needs at least two symbols")
		}
	}

	mode := enum.ExecutionReal
	if cfg.Engine.Simulation {
		mode = enum.ExecutionPaper
	}
	loaded := Loaded{
		Engine:      cfg.Engine,
		Risk:        cfg.Risk,
		Symbols:     symbols,
		Exchange:    cfg.Exchange,
		Database:    cfg.Database,
		Alert:       cfg.Alert,
		Credentials: loadCredentials(),
		Mode:        mode,
	}
	if mode == enum.ExecutionReal && loaded.Credentials.APIKey == "" {
		return Loaded{}, fmt.Errorf("live mode requires BYBIT_API_KEY / BYBIT_API_SECRET")
	}
	return loaded, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Engine.Interval == "" {
		cfg.Engine.Interval = "5"
	}
	if cfg.Engine.WarmupBars <= 0 {
		cfg.Engine.WarmupBars = 200
	}
	if cfg.Engine.BusCapacity <= 0 {
		cfg.Engine.BusCapacity = 1024
	}
	if cfg.Engine.RegimeRefreshSec <= 0 {
		cfg.Engine.RegimeRefreshSec = 300
	}
	if cfg.Engine.PaperBalance <= 0 {
		cfg.Engine.PaperBalance = 10_000
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 2
	}
	if cfg.Risk.EmergencyRatio <= 0 {
		cfg.Risk.EmergencyRatio = 0.50
	}
	if cfg.Risk.RecoveryRatio <= 0 {
		cfg.Risk.RecoveryRatio = 0.80
	}
	if cfg.Risk.RecoveryExitRatio <= 0 {
		cfg.Risk.RecoveryExitRatio = 0.85
	}
	if cfg.Risk.RecoveryCapPct <= 0 {
		cfg.Risk.RecoveryCapPct = 0.20
	}
	if cfg.Risk.ReplaceProfitPct <= 0 {
		cfg.Risk.ReplaceProfitPct = 0.02
	}
	if cfg.Risk.ReplaceLossPct <= 0 {
		cfg.Risk.ReplaceLossPct = 0.01
	}
	if cfg.Risk.TrailingDelaySec <= 0 {
		cfg.Risk.TrailingDelaySec = 300
	}
	if cfg.Risk.GlobalMaxLeverage <= 0 {
		cfg.Risk.GlobalMaxLeverage = 10
	}
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.bybit.com"
	}
	if cfg.Exchange.WsPublicURL == "" {
		cfg.Exchange.WsPublicURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if cfg.Exchange.WsPrivateURL == "" {
		cfg.Exchange.WsPrivateURL = "wss://stream.bybit.com/v5/private"
	}
	if cfg.Exchange.RecvWindowMs <= 0 {
		cfg.Exchange.RecvWindowMs = 5000
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port <= 0 {
		cfg.Database.Port = 5432
	}
}

func loadCredentials() Credentials {
	_ = godotenv.Load()
	return Credentials{
		APIKey:    os.Getenv("BYBIT_API_KEY"),
		APISecret: os.Getenv("BYBIT_API_SECRET"),
	}
}

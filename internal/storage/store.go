package storage

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/model"
	"main/pkg/conn"
	"main/pkg/exception"
)

// Store is the persistence collaborator. In-memory state stays
// authoritative on write failures; callers log and continue.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a store bound to the client.
func New(client *conn.Client) (*Store, error) {
	db := client.DB()
	if db == nil {
		return nil, errors.New("nil database client")
	}
	if err := db.AutoMigrate(
		&klineRecord{},
		&signalRecord{},
		&tradeRecord{},
		&riskStateRecord{},
		&strategyStateRecord{},
	); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &Store{db: db}, nil
}

type klineRecord struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"index:idx_kline,priority:1"`
	Interval string    `gorm:"index:idx_kline,priority:2"`
	Start    time.Time `gorm:"index:idx_kline,priority:3"`
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

func (klineRecord) TableName() string { return "klines" }

type signalRecord struct {
	ID        uint `gorm:"primaryKey"`
	TraceID   string
	Symbol    string
	Type      string
	Price     float64
	Quantity  float64
	Leverage  int
	Reason    string
	Status    string
	Strategy  string
	CreatedAt time.Time
}

func (signalRecord) TableName() string { return "signals" }

type tradeRecord struct {
	ID            uint `gorm:"primaryKey"`
	Symbol        string
	Side          string
	Price         float64
	Quantity      float64
	Value         float64
	PnL           float64
	Strategy      string
	ExecutionType string
	Timestamp     time.Time
}

func (tradeRecord) TableName() string { return "trades" }

type riskStateRecord struct {
	ID                  uint `gorm:"primaryKey"`
	DailyLoss           float64
	LastResetDate       string
	ConsecutiveLossDays int
	UpdatedAt           time.Time
}

func (riskStateRecord) TableName() string { return "risk_states" }

type strategyStateRecord struct {
	Strategy  string `gorm:"primaryKey"`
	Symbol    string `gorm:"primaryKey"`
	State     []byte
	UpdatedAt time.Time
}

func (strategyStateRecord) TableName() string { return "strategy_states" }

// SaveKline upserts one bar keyed by symbol/interval/start.
func (s *Store) SaveKline(ctx context.Context, k model.Kline) error {
	rec := klineRecord{
		Symbol:   k.Symbol,
		Interval: k.Interval,
		Start:    k.Start,
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	return errors.Wrap(err, "save kline")
}

// Klines returns the most recent bars in chronological order.
func (s *Store) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	var recs []klineRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND interval = ?", symbol, interval).
		Order("start DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "load klines")
	}
	out := make([]model.Kline, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		out = append(out, model.Kline{
			Symbol:    rec.Symbol,
			Interval:  rec.Interval,
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
			Start:     rec.Start,
			Confirmed: true,
		})
	}
	return out, nil
}

// SaveSignal records a signal outcome. Rejections carry the
// machine-parseable "REJECTED: <GateName>" status.
func (s *Store) SaveSignal(ctx context.Context, sig *model.Signal, status string) error {
	rec := signalRecord{
		TraceID:   sig.TraceID,
		Symbol:    sig.Symbol,
		Type:      sig.Type.String(),
		Price:     sig.Price,
		Quantity:  sig.Quantity,
		Leverage:  sig.Leverage,
		Reason:    sig.Reason,
		Status:    status,
		Strategy:  sig.Strategy,
		CreatedAt: time.Now().UTC(),
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rec).Error, "save signal")
}

// SaveTrade appends a write-once trade record.
func (s *Store) SaveTrade(ctx context.Context, t model.Trade) error {
	rec := tradeRecord{
		Symbol:        t.Symbol,
		Side:          t.Side.String(),
		Price:         t.Price,
		Quantity:      t.Quantity,
		Value:         t.Value,
		PnL:           t.PnL,
		Strategy:      t.Strategy,
		ExecutionType: t.ExecutionType.String(),
		Timestamp:     t.Timestamp,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rec).Error, "save trade")
}

// RiskState loads the singleton risk state row.
func (s *Store) RiskState(ctx context.Context) (model.RiskState, error) {
	var rec riskStateRecord
	err := s.db.WithContext(ctx).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RiskState{}, exception.ErrStateNotFound
	}
	if err != nil {
		return model.RiskState{}, errors.Wrap(err, "load risk state")
	}
	return model.RiskState{
		DailyLoss:           rec.DailyLoss,
		LastResetDate:       rec.LastResetDate,
		ConsecutiveLossDays: rec.ConsecutiveLossDays,
	}, nil
}

// UpdateRiskState writes through the singleton risk state row.
func (s *Store) UpdateRiskState(ctx context.Context, state model.RiskState) error {
	rec := riskStateRecord{
		ID:                  1,
		DailyLoss:           state.DailyLoss,
		LastResetDate:       state.LastResetDate,
		ConsecutiveLossDays: state.ConsecutiveLossDays,
		UpdatedAt:           time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	return errors.Wrap(err, "update risk state")
}

// StrategyState loads a per-strategy-per-symbol state blob.
func (s *Store) StrategyState(ctx context.Context, strategy, symbol string) ([]byte, error) {
	var rec strategyStateRecord
	err := s.db.WithContext(ctx).
		Where("strategy = ? AND symbol = ?", strategy, symbol).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, exception.ErrStateNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load strategy state")
	}
	return rec.State, nil
}

// SaveStrategyState upserts a per-strategy-per-symbol state blob.
func (s *Store) SaveStrategyState(ctx context.Context, strategy, symbol string, state []byte) error {
	rec := strategyStateRecord{
		Strategy:  strategy,
		Symbol:    symbol,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	return errors.Wrap(err, "save strategy state")
}


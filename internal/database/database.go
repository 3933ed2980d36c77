// Package database persists cycle events and window summaries.
//
// The connection string picks the driver: postgres:// URLs use
// PostgreSQL, anything else is treated as an SQLite file path.
package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/updown/internal/events"
)

type Database struct {
	db *gorm.DB
}

// CycleEvent is one persisted trading lifecycle event
type CycleEvent struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Asset      string `gorm:"index"`
	PeriodTs   int64  `gorm:"index"`
	Kind       string `gorm:"index"` // ENTRY, TAKE_PROFIT, STOP_LOSS, SETTLE_WIN, SETTLE_LOSS, DISCARD
	Side       string // UP or DOWN
	EntryPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	ExitPrice  decimal.Decimal `gorm:"type:decimal(10,6)"`
	Size       decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnL        decimal.Decimal `gorm:"type:decimal(20,6)"`
	Simulated  bool
	OccurredAt time.Time
	CreatedAt  time.Time
}

// PeriodSummary is one asset's totals for a closed window
type PeriodSummary struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Asset     string `gorm:"index"`
	PeriodTs  int64  `gorm:"index"`
	Wins      int
	Losses    int
	PnL       decimal.Decimal `gorm:"type:decimal(20,6)"`
	FundUsed  decimal.Decimal `gorm:"type:decimal(20,6)"`
	Simulated bool
	CreatedAt time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&CycleEvent{}, &PeriodSummary{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) SaveCycleEvent(e *CycleEvent) error {
	return d.db.Create(e).Error
}

func (d *Database) SavePeriodSummary(s *PeriodSummary) error {
	return d.db.Create(s).Error
}

// RecentEvents returns the newest cycle events first
func (d *Database) RecentEvents(limit int) ([]CycleEvent, error) {
	var rows []CycleEvent
	err := d.db.Order("occurred_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// EventsByAsset returns an asset's newest events first
func (d *Database) EventsByAsset(asset string, limit int) ([]CycleEvent, error) {
	var rows []CycleEvent
	err := d.db.Where("asset = ?", asset).Order("occurred_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// TotalPnL sums realized PnL over closing events
func (d *Database) TotalPnL() (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := d.db.Model(&CycleEvent{}).
		Where("kind IN ?", []string{"TAKE_PROFIT", "STOP_LOSS", "SETTLE_WIN", "SETTLE_LOSS"}).
		Select("COALESCE(SUM(pn_l), 0) as total").
		Scan(&result).Error
	return result.Total, err
}

// Stats returns aggregate counters for status reporting
func (d *Database) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var eventCount int64
	d.db.Model(&CycleEvent{}).Count(&eventCount)
	stats["total_events"] = eventCount

	var winCount int64
	d.db.Model(&CycleEvent{}).Where("kind IN ?", []string{"TAKE_PROFIT", "SETTLE_WIN"}).Count(&winCount)
	stats["wins"] = winCount

	var lossCount int64
	d.db.Model(&CycleEvent{}).Where("kind IN ?", []string{"STOP_LOSS", "SETTLE_LOSS"}).Count(&lossCount)
	stats["losses"] = lossCount

	pnl, _ := d.TotalPnL()
	stats["total_pnl"] = pnl

	type assetCount struct {
		Asset string
		Count int64
	}
	var counts []assetCount
	d.db.Model(&CycleEvent{}).Select("asset, count(*) as count").Group("asset").Scan(&counts)
	byAsset := make(map[string]int64)
	for _, ac := range counts {
		byAsset[ac.Asset] = ac.Count
	}
	stats["by_asset"] = byAsset

	return stats, nil
}

// StoreSink persists every event and summary it receives
type StoreSink struct {
	db *Database
}

func NewStoreSink(db *Database) *StoreSink {
	return &StoreSink{db: db}
}

func (s *StoreSink) Emit(e events.Event) {
	row := &CycleEvent{
		Asset:      e.Asset,
		PeriodTs:   e.PeriodTs,
		Kind:       string(e.Kind),
		Side:       e.Side,
		EntryPrice: e.EntryPrice,
		ExitPrice:  e.ExitPrice,
		Size:       e.Size,
		PnL:        e.PnL,
		Simulated:  e.Simulated,
		OccurredAt: e.Time,
	}
	if err := s.db.SaveCycleEvent(row); err != nil {
		log.Error().Err(err).Str("asset", e.Asset).Msg("Failed to persist cycle event")
	}
}

func (s *StoreSink) EmitSummary(sum events.Summary) {
	row := &PeriodSummary{
		Asset:     sum.Asset,
		PeriodTs:  sum.PeriodTs,
		Wins:      sum.Wins,
		Losses:    sum.Losses,
		PnL:       sum.PnL,
		FundUsed:  sum.FundUsed,
		Simulated: sum.Simulated,
	}
	if err := s.db.SavePeriodSummary(row); err != nil {
		log.Error().Err(err).Str("asset", sum.Asset).Msg("Failed to persist window summary")
	}
}

package engine

import (
	"gorm.io/gorm"

	"github.com/dexcore/matching-engine/internal/types"
)

// Database is the engine's view of the ledger: trades are append-only,
// orders are updated in place as their fill state changes.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// SavePass persists the results of one matching pass in a single
// transaction: all trades created and all touched orders written, or
// nothing.
func (d *Database) SavePass(trades []*types.Trade, orders []*types.Order) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, trade := range trades {
		if err := tx.Create(trade).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	for _, order := range orders {
		if err := tx.Save(order).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}

// GetTradesByPair returns all trades for a pair in execution order. The
// primary key is the ordering key: the in-process sequence counter restarts
// with the process, so it cannot order rows across restarts.
func (d *Database) GetTradesByPair(pair string) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Where("pair = ?", pair).Order("id asc").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

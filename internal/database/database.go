package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dexcore/matching-engine/internal/types"
)

// NewDatabase initializes the order and trade ledger. The live books are
// in-memory only; this store is an audit record and is not replayed into the
// books on startup.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&types.Order{}, &types.Trade{}); err != nil {
		return nil, err
	}

	return db, nil
}

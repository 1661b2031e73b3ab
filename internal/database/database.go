package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"valora/server/internal/models"
)

// Database stores property records in SQLite. It is the system of record for
// the training corpus; model artifacts live in the artifact store, not here.
type Database struct {
	db *gorm.DB
}

// NewDatabase opens (or creates) the SQLite database at dbPath and runs
// migrations.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.PropertyRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{db: db}, nil
}

// InsertRecords stores a batch of records in one transaction. Records that
// carry an existing ID replace the stored row, so re-ingested batches do not
// duplicate the corpus.
func (d *Database) InsertRecords(records []*models.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(records).Error
	})
}

// RecordsByType returns every stored record with the given property type.
func (d *Database) RecordsByType(propertyType string) ([]models.PropertyRecord, error) {
	var records []models.PropertyRecord
	err := d.db.Where("property_type = ?", propertyType).Find(&records).Error
	return records, err
}

// AllRecords returns the full training corpus.
func (d *Database) AllRecords() ([]models.PropertyRecord, error) {
	var records []models.PropertyRecord
	err := d.db.Find(&records).Error
	return records, err
}

// CountByType returns the number of stored records per property type.
func (d *Database) CountByType() (map[string]int64, error) {
	type row struct {
		PropertyType string
		N            int64
	}
	var rows []row
	err := d.db.Model(&models.PropertyRecord{}).
		Select("property_type, COUNT(*) as n").
		Group("property_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.PropertyType] = r.N
	}
	return counts, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package db

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tcbot-dev/tchelper/pkg/db/models"
)

type DB struct {
	DB *gorm.DB

	// BatchSize is used for how many insertions we should do at once. Postgres supports
	// a maximum of 2^16 records per insert.
	BatchSize int
}

func New(dsn string, logLevel logger.LogLevel) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	return &DB{
		DB:        db,
		BatchSize: 1024,
	}, nil
}

// UpdateSchema creates or migrates the history tables.
func (d *DB) UpdateSchema() error {
	for _, model := range []interface{}{
		&models.ChainDaySummary{},
		&models.SuitePassRate{},
	} {
		if err := d.DB.AutoMigrate(model); err != nil {
			return errors.Wrapf(err, "error migrating %T", model)
		}
	}
	log.Info("history schema is up to date")
	return nil
}

package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	db           *gorm.DB
	driver       string
	requestRepo  persistence.RequestRepository
	metricsRepo  persistence.MetricsRepository
	feedbackRepo persistence.FeedbackRepository
}

var (
	_ persistence.DatabaseManager    = (*DatabaseManager)(nil)
	_ persistence.TransactionManager = (*DatabaseManager)(nil)
)

func NewDatabaseManager() *DatabaseManager {
	return &DatabaseManager{}
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres, "":
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Connect opens the audit database with the given driver (postgres or sqlite)
func (dm *DatabaseManager) Connect(ctx context.Context, driver, dsn string) error {
	if driver == "" {
		driver = DriverPostgres
	}
	logrus.WithField("driver", driver).Info("Connecting to audit database...")

	dial, err := dialector(driver, dsn)
	if err != nil {
		return err
	}

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if driver == DriverSQLite {
		// one connection keeps in-memory databases shared across goroutines
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.db = db
	dm.driver = driver
	dm.requestRepo = NewRequestRepository(db)
	dm.metricsRepo = NewMetricsRepository(db)
	dm.feedbackRepo = NewFeedbackRepository(db)

	logrus.WithField("driver", driver).Info("Successfully connected to audit database")
	return nil
}

func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate creates the audit tables and, on postgres, the reporting indexes
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.AutoMigrate(
		&persistence.RequestRecord{},
		&persistence.RequestMetrics{},
		&persistence.RequestFeedback{},
	); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	if dm.driver == DriverPostgres {
		dm.createIndexes()
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// createIndexes adds the composite indexes the stats queries use
func (dm *DatabaseManager) createIndexes() {
	indexes := []string{
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_requests_model_created ON requests (model, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_requests_status_created ON requests (status, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_requests_fallback_model ON requests (model) WHERE fallback",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_request_metrics_created ON request_metrics (created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_request_feedback_request_created ON request_feedback (request_id, created_at DESC)",
	}

	for _, index := range indexes {
		if err := dm.db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
		}
	}
}

func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (dm *DatabaseManager) GetRepositories() (persistence.RequestRepository, persistence.MetricsRepository, persistence.FeedbackRepository) {
	return dm.requestRepo, dm.metricsRepo, dm.feedbackRepo
}

// WithTransaction executes fn within a database transaction carried by its context
func (dm *DatabaseManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	tx := dm.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			logrus.WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"datatoken/internal/pkg/logger"
)

type Store struct {
	DB      *gorm.DB
	Ledger  *LedgerRepository
	Content *ContentRepository
}

type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// NewStore connects to postgres. An empty DSN yields a store without a
// database; callers fall back to the in-memory ledger.
func NewStore(opts Options, log *zap.Logger) (*Store, error) {
	log = logger.OrNop(log)
	if opts.DSN == "" {
		log.Info("postgres dsn not set; database store disabled")
		return &Store{}, nil
	}

	gdb, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	store := &Store{DB: gdb, Ledger: NewLedgerRepository(gdb), Content: NewContentRepository(gdb)}
	if opts.AutoMigrate {
		if err := store.Migrate(context.Background()); err != nil {
			return nil, err
		}
		log.Info("database schema migrated")
	}
	return store, nil
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	if err := s.DB.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

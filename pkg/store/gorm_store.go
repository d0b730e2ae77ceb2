package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

const migrateLockID int64 = 84230017

const (
	defaultMinConns       = 5
	defaultMaxConns       = 20
	defaultCommandTimeout = 60 * time.Second
	defaultListLimit      = 50
	maxListLimit          = 200
)

type GormStoreOptions struct {
	MinConns       int
	MaxConns       int
	CommandTimeout time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithPoolBounds sets the idle/open connection bounds of the pool.
func WithPoolBounds(minConns, maxConns int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.MinConns = minConns
		opts.MaxConns = maxConns
	}
}

// WithCommandTimeout bounds any single database operation.
func WithCommandTimeout(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.CommandTimeout = d
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db             *gorm.DB
	commandTimeout time.Duration
}

// NewGormStore opens the DB, applies pool bounds, and runs the idempotent
// schema migration. Safe to call on every process start.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{
		MinConns:       defaultMinConns,
		MaxConns:       defaultMaxConns,
		CommandTimeout: defaultCommandTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.MinConns < 0 || opts.MaxConns <= 0 || opts.MinConns > opts.MaxConns {
		return nil, fmt.Errorf("invalid pool bounds: min=%d max=%d", opts.MinConns, opts.MaxConns)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(opts.MinConns)
	sqlDB.SetMaxOpenConns(opts.MaxConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&CallRecordModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// Descending order is not expressible through GORM index tags.
		if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_call_records_created_at ON call_records (created_at DESC)`).Error; err != nil {
			return fmt.Errorf("create created_at index: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, commandTimeout: opts.CommandTimeout}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.commandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// PersistRecord inserts a record inside a single transaction. The unique id is
// generated here, never supplied by the caller.
func (s *GormStore) PersistRecord(ctx context.Context, transcript string, ins domain.Insight, metadata map[string]any) (int64, string, error) {
	if s == nil || s.db == nil {
		return 0, "", ErrUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	uniqueID := uuid.NewString()
	model, err := recordToModel(transcript, ins, metadata, uniqueID)
	if err != nil {
		return 0, "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&model).Error
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, "", fmt.Errorf("%w: unique_id %s", ErrDuplicate, uniqueID)
		}
		return 0, "", fmt.Errorf("persist call record: %w", err)
	}
	return model.ID, uniqueID, nil
}

// GetRecordByUniqueID fetches one record by its external reference key.
func (s *GormStore) GetRecordByUniqueID(ctx context.Context, uniqueID string) (domain.CallRecord, bool, error) {
	if s == nil || s.db == nil {
		return domain.CallRecord{}, false, ErrUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var model CallRecordModel
	if err := s.db.WithContext(ctx).First(&model, "unique_id = ?", uniqueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CallRecord{}, false, nil
		}
		return domain.CallRecord{}, false, fmt.Errorf("get call record: %w", err)
	}
	return recordFromModel(model), true, nil
}

// ListRecords returns records newest first, filtered by the indexed columns.
func (s *GormStore) ListRecords(ctx context.Context, filter ListFilter) ([]domain.CallRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := s.db.WithContext(ctx).Model(&CallRecordModel{}).Order("created_at DESC").Limit(limit)
	if filter.Sentiment != nil {
		query = query.Where("sentiment = ?", string(*filter.Sentiment))
	}
	if filter.ActionRequired != nil {
		query = query.Where("action_required = ?", *filter.ActionRequired)
	}
	var models []CallRecordModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	records := make([]domain.CallRecord, 0, len(models))
	for _, m := range models {
		records = append(records, recordFromModel(m))
	}
	return records, nil
}

// HealthCheck issues a trivial round trip. False on any failure, never an error.
func (s *GormStore) HealthCheck(ctx context.Context) bool {
	if s == nil || s.db == nil {
		return false
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return false
	}
	return one == 1
}

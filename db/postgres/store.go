// Package postgres stores jackpots in PostgreSQL through gorm. Exclusive
// access uses SELECT ... FOR UPDATE bounded by a transaction-local
// lock_timeout.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Altmerian/jackpot/config"
	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/pkg/jackpot"
)

const (
	pgLockNotAvailable = "55P03"
	pgUniqueViolation  = "23505"
	pgQueryCanceled    = "57014"
)

// Store implements jackpot.Store on a gorm connection.
type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// Open connects to PostgreSQL and verifies the connection.
func Open(cfg config.PostgresConfig, lockTimeout time.Duration, logger zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return New(db, lockTimeout, logger), nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB, lockTimeout time.Duration, logger zerolog.Logger) *Store {
	if lockTimeout <= 0 {
		lockTimeout = jackpot.DefaultLockTimeout
	}
	return &Store{
		db:          db,
		lockTimeout: lockTimeout,
		logger:      logger.With().Str("component", "postgres_store").Logger(),
	}
}

// Migrate creates or updates the tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Jackpot{}, &Contribution{}, &Reward{}); err != nil {
		return errors.Wrap(err, errors.ErrStorageError, "auto migrate failed")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetJackpot(ctx context.Context, id string) (*jackpot.Jackpot, error) {
	var m Jackpot
	err := s.db.WithContext(ctx).Where("jackpot_id = ?", id).Take(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "get jackpot "+id)
	}
	return m.toDomain(), nil
}

func (s *Store) ListJackpots(ctx context.Context) ([]*jackpot.Jackpot, error) {
	var rows []Jackpot
	if err := s.db.WithContext(ctx).Order("jackpot_id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "list jackpots")
	}
	return lo.Map(rows, func(m Jackpot, _ int) *jackpot.Jackpot { return m.toDomain() }), nil
}

func (s *Store) FindContribution(ctx context.Context, betID, jackpotID string) (*jackpot.ContributionRecord, error) {
	return findContribution(s.db.WithContext(ctx), betID, jackpotID)
}

func (s *Store) ListRewards(ctx context.Context, jackpotID string, limit int) ([]*jackpot.RewardRecord, error) {
	q := s.db.WithContext(ctx).Where("jackpot_id = ?", jackpotID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Reward
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapError(err, "list rewards")
	}
	return lo.Map(rows, func(m Reward, _ int) *jackpot.RewardRecord { return m.toDomain() }), nil
}

func (s *Store) CreateJackpotIfAbsent(ctx context.Context, j *jackpot.Jackpot) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jackpot_id"}}, DoNothing: true}).
		Create(jackpotFromDomain(j))
	if res.Error != nil {
		return false, mapError(res.Error, "create jackpot "+j.ID)
	}
	return res.RowsAffected == 1, nil
}

// RunInTx runs fn inside a database transaction whose lock waits are
// bounded by the store's lock timeout.
func (s *Store) RunInTx(ctx context.Context, fn func(tx jackpot.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if err := db.Exec(stmt).Error; err != nil {
			return mapError(err, "set lock timeout")
		}
		return fn(&tx{db: db, store: s})
	})
	if err != nil && !errors.IsAppError(err) {
		return mapError(err, "transaction")
	}
	return err
}

type tx struct {
	db    *gorm.DB
	store *Store
}

func (t *tx) GetJackpotForUpdate(ctx context.Context, id string) (*jackpot.Jackpot, error) {
	var m Jackpot
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("jackpot_id = ?", id).
		Take(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		mapped := mapError(err, "lock jackpot "+id)
		if errors.Is(mapped, errors.ErrLockTimeout) {
			t.store.logger.Warn().Str("jackpot_id", id).Dur("timeout", t.store.lockTimeout).Msg("jackpot lock timeout")
		}
		return nil, mapped
	}
	return m.toDomain(), nil
}

func (t *tx) FindContribution(ctx context.Context, betID, jackpotID string) (*jackpot.ContributionRecord, error) {
	return findContribution(t.db.WithContext(ctx), betID, jackpotID)
}

func (t *tx) FindReward(ctx context.Context, betID, jackpotID string) (*jackpot.RewardRecord, error) {
	var m Reward
	err := t.db.WithContext(ctx).Where("bet_id = ? AND jackpot_id = ?", betID, jackpotID).Take(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "find reward")
	}
	return m.toDomain(), nil
}

// SaveJackpot writes the pool fields only; configuration is immutable after
// seeding.
func (t *tx) SaveJackpot(ctx context.Context, j *jackpot.Jackpot) error {
	res := t.db.WithContext(ctx).
		Model(&Jackpot{}).
		Where("jackpot_id = ?", j.ID).
		Updates(map[string]interface{}{
			"current_pool": j.CurrentPool,
			"updated_at":   j.UpdatedAt,
		})
	if res.Error != nil {
		return mapError(res.Error, "save jackpot "+j.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Newf(errors.ErrNotFound, "jackpot %s not found", j.ID)
	}
	return nil
}

func (t *tx) InsertContribution(ctx context.Context, rec *jackpot.ContributionRecord) error {
	if err := t.db.WithContext(ctx).Create(contributionFromDomain(rec)).Error; err != nil {
		return mapError(err, "insert contribution")
	}
	return nil
}

func (t *tx) InsertReward(ctx context.Context, rec *jackpot.RewardRecord) error {
	if err := t.db.WithContext(ctx).Create(rewardFromDomain(rec)).Error; err != nil {
		return mapError(err, "insert reward")
	}
	return nil
}

func findContribution(db *gorm.DB, betID, jackpotID string) (*jackpot.ContributionRecord, error) {
	var m Contribution
	err := db.Where("bet_id = ? AND jackpot_id = ?", betID, jackpotID).Take(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "find contribution")
	}
	return m.toDomain(), nil
}

// mapError classifies driver errors into application error codes.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return errors.Wrap(err, errors.ErrLockTimeout, op+": lock not available")
		case pgUniqueViolation:
			return errors.Wrap(err, errors.ErrConflict, op+": duplicate key")
		case pgQueryCanceled:
			return errors.Wrap(err, errors.ErrServiceUnavailable, op+": statement canceled")
		}
	}
	return errors.Wrap(err, errors.ErrStorageError, op+" failed")
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmcnulty/linecanon/internal/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate provisions the schema, including the natural-key unique indexes
// the insert-or-ignore discipline depends on.
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&RawObservation{},
		&Event{},
		&Score{},
		&CanonicalSpread{},
		&CanonicalTotal{},
		&CanonicalMoneyline{},
		&MergeLog{},
	)
}

// InsertObservation appends a raw observation. A row with the same natural key
// already present makes the insert a no-op; the bool reports whether a new row
// was written.
func (db *DB) InsertObservation(ctx context.Context, obs *RawObservation) (bool, error) {
	result := db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(obs)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetObservationsInWindow returns observations for one market whose
// collected-at falls in [fromTS, toTS].
func (db *DB) GetObservationsInWindow(ctx context.Context, market string, fromTS, toTS int64) ([]RawObservation, error) {
	var rows []RawObservation
	result := db.conn.WithContext(ctx).
		Where("market = ? AND collected_ts >= ? AND collected_ts <= ?", market, fromTS, toTS).
		Order("event_id, bookmaker, collected_ts").
		Find(&rows)
	return rows, result.Error
}

// MaxObservationTS returns the newest collected-at for a source within the
// window; the bool is false when the source has no rows in the window.
func (db *DB) MaxObservationTS(ctx context.Context, source string, fromTS int64) (int64, bool, error) {
	var max sql.NullInt64
	err := db.conn.WithContext(ctx).
		Model(&RawObservation{}).
		Where("source = ? AND collected_ts >= ?", source, fromTS).
		Select("MAX(collected_ts)").
		Row().Scan(&max)
	if err != nil {
		return 0, false, err
	}
	return max.Int64, max.Valid, nil
}

// MaxScoreTS returns the newest score collected-at for a source within the window.
func (db *DB) MaxScoreTS(ctx context.Context, source string, fromTS int64) (int64, bool, error) {
	var max sql.NullInt64
	err := db.conn.WithContext(ctx).
		Model(&Score{}).
		Where("source = ? AND collected_ts >= ?", source, fromTS).
		Select("MAX(collected_ts)").
		Row().Scan(&max)
	if err != nil {
		return 0, false, err
	}
	return max.Int64, max.Valid, nil
}

// CreateEvent records a contest on first sighting; an existing id is a no-op.
func (db *DB) CreateEvent(ctx context.Context, event *Event) error {
	return db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
}

// GetAllEvents returns every event row
func (db *DB) GetAllEvents(ctx context.Context) ([]Event, error) {
	var events []Event
	result := db.conn.WithContext(ctx).Order("id").Find(&events)
	return events, result.Error
}

// GetEventsByIDs returns the named events keyed by id
func (db *DB) GetEventsByIDs(ctx context.Context, ids []string) (map[string]Event, error) {
	if len(ids) == 0 {
		return map[string]Event{}, nil
	}
	var events []Event
	result := db.conn.WithContext(ctx).Where("id IN ?", ids).Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	byID := make(map[string]Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	return byID, nil
}

// FlagEventForReview marks an event whose teams could not be canonicalized
func (db *DB) FlagEventForReview(ctx context.Context, eventID string) error {
	return db.conn.WithContext(ctx).
		Model(&Event{}).
		Where("id = ?", eventID).
		Update("needs_review", true).Error
}

// CountObservationsByEvent returns attached-observation counts per event id
func (db *DB) CountObservationsByEvent(ctx context.Context) (map[string]int64, error) {
	type row struct {
		EventID string
		N       int64
	}
	var rows []row
	result := db.conn.WithContext(ctx).
		Model(&RawObservation{}).
		Select("event_id, COUNT(*) AS n").
		Group("event_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.EventID] = r.N
	}
	return counts, nil
}

// UpsertScore records a score; an existing row for the event is left untouched.
func (db *DB) UpsertScore(ctx context.Context, score *Score) (bool, error) {
	result := db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(score)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// InsertSpread writes a canonical spread row, keyed by its full natural key.
// A second write with an identical key is a no-op, never an overwrite.
func (db *DB) InsertSpread(ctx context.Context, row *CanonicalSpread) (bool, error) {
	result := db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// InsertTotal writes a canonical total row under the same discipline.
func (db *DB) InsertTotal(ctx context.Context, row *CanonicalTotal) (bool, error) {
	result := db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// InsertMoneyline writes a canonical moneyline row under the same discipline.
func (db *DB) InsertMoneyline(ctx context.Context, row *CanonicalMoneyline) (bool, error) {
	result := db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MergeEvents migrates every reference from a duplicate event id to the
// canonical id and removes the duplicate Event row, all inside one
// transaction. A reference that would collide with an identical natural key
// already present under the canonical id is dropped, not field-merged.
// Failure rolls back the whole member, leaving the duplicate in place for the
// next run.
func (db *DB) MergeEvents(ctx context.Context, canonicalID, duplicateID string) (*MergeLog, error) {
	entry := &MergeLog{
		ID:          uuid.NewString(),
		CanonicalID: canonicalID,
		DuplicateID: duplicateID,
	}

	err := db.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Raw observations. Identical tuples under both ids collapse to the
		// canonical row before re-pointing, so the natural-key index holds.
		if err := tx.Exec(`DELETE d FROM raw_observations d
			JOIN raw_observations c ON c.event_id = ?
				AND c.source = d.source AND c.bookmaker = d.bookmaker
				AND c.market = d.market AND c.outcome = d.outcome
				AND c.collected_ts = d.collected_ts
			WHERE d.event_id = ?`, canonicalID, duplicateID).Error; err != nil {
			return fmt.Errorf("collapse raw observations: %w", err)
		}
		res := tx.Model(&RawObservation{}).
			Where("event_id = ?", duplicateID).
			Update("event_id", canonicalID)
		if res.Error != nil {
			return fmt.Errorf("migrate raw observations: %w", res.Error)
		}
		entry.RawMigrated = res.RowsAffected

		// Score: at most one per event. If the canonical event already has
		// one, the duplicate's is dropped, never merged field-by-field.
		var canonicalScores, duplicateScores int64
		if err := tx.Model(&Score{}).Where("event_id = ?", canonicalID).Count(&canonicalScores).Error; err != nil {
			return fmt.Errorf("count canonical score: %w", err)
		}
		if err := tx.Model(&Score{}).Where("event_id = ?", duplicateID).Count(&duplicateScores).Error; err != nil {
			return fmt.Errorf("count duplicate score: %w", err)
		}
		if duplicateScores > 0 {
			if canonicalScores > 0 {
				if err := tx.Where("event_id = ?", duplicateID).Delete(&Score{}).Error; err != nil {
					return fmt.Errorf("drop duplicate score: %w", err)
				}
				entry.ScoreDropped = true
			} else {
				if err := tx.Model(&Score{}).Where("event_id = ?", duplicateID).
					Update("event_id", canonicalID).Error; err != nil {
					return fmt.Errorf("migrate score: %w", err)
				}
			}
		}

		// Canonical market rows are re-derivable, so colliding natural keys
		// under the duplicate id are simply removed before re-pointing.
		migrations := []struct {
			collapse string
			model    interface{}
		}{
			{`DELETE d FROM canonical_spreads d
				JOIN canonical_spreads c ON c.event_id = ?
					AND c.bookmaker = d.bookmaker AND c.collected_ts = d.collected_ts
				WHERE d.event_id = ?`, &CanonicalSpread{}},
			{`DELETE d FROM canonical_totals d
				JOIN canonical_totals c ON c.event_id = ?
					AND c.bookmaker = d.bookmaker AND c.collected_ts = d.collected_ts
					AND c.total = d.total
				WHERE d.event_id = ?`, &CanonicalTotal{}},
			{`DELETE d FROM canonical_moneylines d
				JOIN canonical_moneylines c ON c.event_id = ?
					AND c.bookmaker = d.bookmaker AND c.collected_ts = d.collected_ts
				WHERE d.event_id = ?`, &CanonicalMoneyline{}},
		}
		for _, m := range migrations {
			if err := tx.Exec(m.collapse, canonicalID, duplicateID).Error; err != nil {
				return fmt.Errorf("collapse canonical rows: %w", err)
			}
			res := tx.Model(m.model).
				Where("event_id = ?", duplicateID).
				Update("event_id", canonicalID)
			if res.Error != nil {
				return fmt.Errorf("migrate canonical rows: %w", res.Error)
			}
			entry.RowsMigrated += res.RowsAffected
		}

		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("write merge log: %w", err)
		}

		// The duplicate Event row goes only once everything above committed
		// in the same transaction.
		if err := tx.Where("id = ?", duplicateID).Delete(&Event{}).Error; err != nil {
			return fmt.Errorf("delete duplicate event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

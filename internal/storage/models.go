package storage

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Market keys as they appear in raw quote feeds
const (
	MarketSpreads   = "spreads"
	MarketTotals    = "totals"
	MarketMoneyline = "h2h"
)

// RawObservation is one bookmaker's quote for one outcome of one market of one
// event at one collection instant. Rows are append-only; the composite unique
// index is the natural key collectors conflict against, so retried collection
// runs land as no-ops rather than near-duplicates.
type RawObservation struct {
	ID          uint64           `gorm:"primaryKey;autoIncrement"`
	Source      string           `gorm:"size:16;not null;uniqueIndex:uq_raw_obs,priority:1"`
	Sport       string           `gorm:"size:32;not null;index"`
	EventID     string           `gorm:"size:64;not null;uniqueIndex:uq_raw_obs,priority:2;index"`
	CommenceTS  *int64           `gorm:"index"`
	HomeTeam    string           `gorm:"size:64;not null"`
	AwayTeam    string           `gorm:"size:64;not null"`
	Bookmaker   string           `gorm:"size:32;not null;uniqueIndex:uq_raw_obs,priority:3"`
	Market      string           `gorm:"size:8;not null;uniqueIndex:uq_raw_obs,priority:4"`
	Outcome     string           `gorm:"size:64;not null;uniqueIndex:uq_raw_obs,priority:5"`
	Price       int              `gorm:"not null"`
	Point       *decimal.Decimal `gorm:"type:decimal(6,2)"`
	CollectedTS int64            `gorm:"not null;index;uniqueIndex:uq_raw_obs,priority:6"`
	CreatedTS   int64            `gorm:"not null"`
}

func (RawObservation) TableName() string {
	return "raw_observations"
}

// Event is a canonical real-world contest. Created on first sighting with the
// source-assigned identifier; the resolver merges rows that denote the same
// contest and never splits one.
type Event struct {
	ID          string `gorm:"primaryKey;size:64"`
	Sport       string `gorm:"size:32;not null;index"`
	HomeTeam    string `gorm:"size:64;not null"`
	AwayTeam    string `gorm:"size:64;not null"`
	CommenceTS  int64  `gorm:"not null;index"`
	Source      string `gorm:"size:16;not null"`
	NeedsReview bool   `gorm:"default:false;index"`
	CreatedTS   int64  `gorm:"not null"`
}

func (Event) TableName() string {
	return "events"
}

// Score is the final or in-progress result for an event, at most one row per
// event. Source records which feed delivered it.
type Score struct {
	EventID     string `gorm:"primaryKey;size:64"`
	Source      string `gorm:"size:16;not null;index"`
	HomePoints  *int
	AwayPoints  *int
	Completed   bool  `gorm:"default:false"`
	CollectedTS int64 `gorm:"not null;index"`
	CreatedTS   int64 `gorm:"not null"`
}

func (Score) TableName() string {
	return "scores"
}

// CanonicalSpread is one favorite/underdog pairing for one
// (event, bookmaker, collection instant). Spread is always non-negative; a
// pick'em game carries magnitude 0 with the home team in the favorite column
// as a representational convention.
type CanonicalSpread struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	EventID       string          `gorm:"size:64;not null;uniqueIndex:uq_spread,priority:1;index"`
	Bookmaker     string          `gorm:"size:32;not null;uniqueIndex:uq_spread,priority:2"`
	CollectedTS   int64           `gorm:"not null;uniqueIndex:uq_spread,priority:3;index"`
	FavoriteTeam  string          `gorm:"size:64;not null"`
	UnderdogTeam  string          `gorm:"size:64;not null"`
	Spread        decimal.Decimal `gorm:"type:decimal(6,2);not null"`
	FavoritePrice int             `gorm:"not null"`
	UnderdogPrice int             `gorm:"not null"`
	CreatedTS     int64           `gorm:"not null"`
}

func (CanonicalSpread) TableName() string {
	return "canonical_spreads"
}

// CanonicalTotal is one over/under pairing. Both legs shared the identical
// line value; the line participates in the natural key because a bookmaker can
// quote alternate totals at the same instant.
type CanonicalTotal struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	EventID     string          `gorm:"size:64;not null;uniqueIndex:uq_total,priority:1;index"`
	Bookmaker   string          `gorm:"size:32;not null;uniqueIndex:uq_total,priority:2"`
	CollectedTS int64           `gorm:"not null;uniqueIndex:uq_total,priority:3;index"`
	Total       decimal.Decimal `gorm:"type:decimal(6,2);not null;uniqueIndex:uq_total,priority:4"`
	OverPrice   int             `gorm:"not null"`
	UnderPrice  int             `gorm:"not null"`
	CreatedTS   int64           `gorm:"not null"`
}

func (CanonicalTotal) TableName() string {
	return "canonical_totals"
}

// CanonicalMoneyline is one head-to-head pairing. Either side may be absent;
// implied probabilities are present exactly when the matching price is.
type CanonicalMoneyline struct {
	ID              uint64   `gorm:"primaryKey;autoIncrement"`
	EventID         string   `gorm:"size:64;not null;uniqueIndex:uq_moneyline,priority:1;index"`
	Bookmaker       string   `gorm:"size:32;not null;uniqueIndex:uq_moneyline,priority:2"`
	CollectedTS     int64    `gorm:"not null;uniqueIndex:uq_moneyline,priority:3;index"`
	HomeTeam        string   `gorm:"size:64;not null"`
	AwayTeam        string   `gorm:"size:64;not null"`
	HomePrice       *int
	AwayPrice       *int
	HomeImpliedProb *float64 `gorm:"type:decimal(7,6)"`
	AwayImpliedProb *float64 `gorm:"type:decimal(7,6)"`
	CreatedTS       int64    `gorm:"not null"`
}

func (CanonicalMoneyline) TableName() string {
	return "canonical_moneylines"
}

// MergeLog records one completed duplicate-event migration, including whether
// a duplicate score row had to be dropped in favor of the canonical event's.
type MergeLog struct {
	ID           string `gorm:"primaryKey;size:36"`
	CanonicalID  string `gorm:"size:64;not null;index"`
	DuplicateID  string `gorm:"size:64;not null;index"`
	RawMigrated  int64  `gorm:"not null"`
	RowsMigrated int64  `gorm:"not null"`
	ScoreDropped bool   `gorm:"default:false"`
	CreatedTS    int64  `gorm:"not null;index"`
}

func (MergeLog) TableName() string {
	return "merge_log"
}

// BeforeCreate hooks for timestamps

func (r *RawObservation) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedTS == 0 {
		r.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedTS == 0 {
		e.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (s *Score) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedTS == 0 {
		s.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (c *CanonicalSpread) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (c *CanonicalTotal) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (c *CanonicalMoneyline) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().Unix()
	}
	return nil
}

func (m *MergeLog) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedTS == 0 {
		m.CreatedTS = time.Now().Unix()
	}
	return nil
}

package canonical

import (
	"context"
	"fmt"
	"time"

	"github.com/dmcnulty/linecanon/internal/config"
	"github.com/dmcnulty/linecanon/internal/metrics"
	"github.com/dmcnulty/linecanon/internal/storage"
	"github.com/dmcnulty/linecanon/internal/teams"
	"github.com/sirupsen/logrus"
)

// Engine derives canonical spread/total/moneyline records from resolved raw
// observations within a time window. Every write is keyed by its full natural
// key and inserted with conflict-ignore, so repeated or overlapping window
// runs are no-ops rather than duplicates.
type Engine struct {
	cfg   *config.Config
	db    *storage.DB
	teams *teams.Resolver
	log   *logrus.Logger
}

// Stats reports aggregate per-market production counts so callers can detect
// silent under-production.
type Stats struct {
	SpreadsWritten    int `json:"spreads_written"`
	TotalsWritten     int `json:"totals_written"`
	MoneylinesWritten int `json:"moneylines_written"`
	PartitionsSkipped int `json:"partitions_skipped"`
	PricesRejected    int `json:"prices_rejected"`
}

// New creates a new canonicalization engine
func New(cfg *config.Config, db *storage.DB, tr *teams.Resolver, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		db:    db,
		teams: tr,
		log:   log,
	}
}

// Canonicalize reads observations whose collected-at falls in
// [now-window, now] and produces canonical market rows. Partitions with
// malformed or missing fields are skipped and counted, never fatal.
func (e *Engine) Canonicalize(ctx context.Context, window time.Duration) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	nowTS := start.Unix()
	fromTS := nowTS - int64(window.Seconds())

	if err := e.canonicalizeSpreads(ctx, fromTS, nowTS, stats); err != nil {
		return nil, err
	}
	if err := e.canonicalizeTotals(ctx, fromTS, nowTS, stats); err != nil {
		return nil, err
	}
	if err := e.canonicalizeMoneylines(ctx, fromTS, nowTS, stats); err != nil {
		return nil, err
	}

	metrics.RecordCanonicalize(time.Since(start))

	e.log.WithFields(logrus.Fields{
		"spreads_written":    stats.SpreadsWritten,
		"totals_written":     stats.TotalsWritten,
		"moneylines_written": stats.MoneylinesWritten,
		"partitions_skipped": stats.PartitionsSkipped,
		"prices_rejected":    stats.PricesRejected,
		"window":             window.String(),
	}).Info("Canonicalization complete")

	return stats, nil
}

func (e *Engine) canonicalizeSpreads(ctx context.Context, fromTS, toTS int64, stats *Stats) error {
	rows, err := e.db.GetObservationsInWindow(ctx, storage.MarketSpreads, fromTS, toTS)
	if err != nil {
		return fmt.Errorf("read spread observations: %w", err)
	}
	metrics.ObservationsRead.WithLabelValues(storage.MarketSpreads).Add(float64(len(rows)))

	events, err := e.eventsFor(ctx, rows)
	if err != nil {
		return err
	}

	for _, partition := range partitionObservations(rows) {
		event, ok := events[partition[0].EventID]
		if !ok {
			e.skip(stats, storage.MarketSpreads, "unknown_event", partition[0])
			continue
		}

		row, reason := e.buildSpread(partition, event)
		if row == nil {
			e.skip(stats, storage.MarketSpreads, reason, partition[0])
			continue
		}

		written, err := e.db.InsertSpread(ctx, row)
		if err != nil {
			return fmt.Errorf("insert canonical spread: %w", err)
		}
		if written {
			stats.SpreadsWritten++
			metrics.CanonicalRowsWritten.WithLabelValues(storage.MarketSpreads).Inc()
		}
	}
	return nil
}

func (e *Engine) canonicalizeTotals(ctx context.Context, fromTS, toTS int64, stats *Stats) error {
	rows, err := e.db.GetObservationsInWindow(ctx, storage.MarketTotals, fromTS, toTS)
	if err != nil {
		return fmt.Errorf("read total observations: %w", err)
	}
	metrics.ObservationsRead.WithLabelValues(storage.MarketTotals).Add(float64(len(rows)))

	events, err := e.eventsFor(ctx, rows)
	if err != nil {
		return err
	}

	for _, partition := range partitionTotals(rows) {
		if _, ok := events[partition[0].EventID]; !ok {
			e.skip(stats, storage.MarketTotals, "unknown_event", partition[0])
			continue
		}

		row, reason := buildTotal(partition)
		if row == nil {
			e.skip(stats, storage.MarketTotals, reason, partition[0])
			continue
		}

		written, err := e.db.InsertTotal(ctx, row)
		if err != nil {
			return fmt.Errorf("insert canonical total: %w", err)
		}
		if written {
			stats.TotalsWritten++
			metrics.CanonicalRowsWritten.WithLabelValues(storage.MarketTotals).Inc()
		}
	}
	return nil
}

func (e *Engine) canonicalizeMoneylines(ctx context.Context, fromTS, toTS int64, stats *Stats) error {
	rows, err := e.db.GetObservationsInWindow(ctx, storage.MarketMoneyline, fromTS, toTS)
	if err != nil {
		return fmt.Errorf("read moneyline observations: %w", err)
	}
	metrics.ObservationsRead.WithLabelValues(storage.MarketMoneyline).Add(float64(len(rows)))

	events, err := e.eventsFor(ctx, rows)
	if err != nil {
		return err
	}

	for _, partition := range partitionObservations(rows) {
		event, ok := events[partition[0].EventID]
		if !ok {
			e.skip(stats, storage.MarketMoneyline, "unknown_event", partition[0])
			continue
		}

		row, rejected, reason := e.buildMoneyline(partition, event)
		stats.PricesRejected += rejected
		if row == nil {
			e.skip(stats, storage.MarketMoneyline, reason, partition[0])
			continue
		}

		written, err := e.db.InsertMoneyline(ctx, row)
		if err != nil {
			return fmt.Errorf("insert canonical moneyline: %w", err)
		}
		if written {
			stats.MoneylinesWritten++
			metrics.CanonicalRowsWritten.WithLabelValues(storage.MarketMoneyline).Inc()
		}
	}
	return nil
}

func (e *Engine) eventsFor(ctx context.Context, rows []storage.RawObservation) (map[string]storage.Event, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range rows {
		if !seen[r.EventID] {
			seen[r.EventID] = true
			ids = append(ids, r.EventID)
		}
	}
	events, err := e.db.GetEventsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return events, nil
}

func (e *Engine) skip(stats *Stats, market, reason string, sample storage.RawObservation) {
	stats.PartitionsSkipped++
	metrics.PartitionsSkipped.WithLabelValues(market, reason).Inc()
	e.log.WithFields(logrus.Fields{
		"market":       market,
		"reason":       reason,
		"event_id":     sample.EventID,
		"bookmaker":    sample.Bookmaker,
		"collected_ts": sample.CollectedTS,
	}).Debug("Skipped partition")
}

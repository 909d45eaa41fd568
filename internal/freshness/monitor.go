package freshness

import (
	"context"
	"fmt"
	"time"

	"github.com/dmcnulty/linecanon/internal/config"
	"github.com/dmcnulty/linecanon/internal/metrics"
	"github.com/dmcnulty/linecanon/internal/storage"
	"github.com/sirupsen/logrus"
)

// Categories evaluated on every check
const (
	CategoryOdds   = "odds"
	CategoryScores = "scores"
)

// Monitor decides whether the canonical view of the world is recent enough to
// act on. Staleness is a normal, expected outcome reported as ok=false with
// diagnostics, not an engine error.
type Monitor struct {
	cfg *config.Config
	db  *storage.DB
	log *logrus.Logger
}

// Result is a point-in-time evaluation. Diagnostics are populated for every
// category even on success, for monitoring consumers.
type Result struct {
	OK         bool              `json:"ok"`
	Categories map[string]string `json:"categories"`
}

// New creates a new freshness monitor
func New(cfg *config.Config, db *storage.DB, log *logrus.Logger) *Monitor {
	return &Monitor{cfg: cfg, db: db, log: log}
}

// Check computes the newest in-window collected-at per category and compares
// its age against the category's threshold. "odds" comes from the primary
// market feed; "scores" takes the later of the primary score feed and the
// secondary schedule feed — either is sufficient evidence of freshness, but
// absence of both is a hard failure regardless of threshold.
func (m *Monitor) Check(ctx context.Context, window time.Duration, now time.Time) (*Result, error) {
	fromTS := now.Add(-window).Unix()

	oddsTS, oddsPresent, err := m.db.MaxObservationTS(ctx, m.cfg.PrimarySource, fromTS)
	if err != nil {
		return nil, fmt.Errorf("max odds timestamp: %w", err)
	}

	primaryTS, primaryPresent, err := m.db.MaxScoreTS(ctx, m.cfg.PrimarySource, fromTS)
	if err != nil {
		return nil, fmt.Errorf("max primary score timestamp: %w", err)
	}
	secondaryTS, secondaryPresent, err := m.db.MaxScoreTS(ctx, m.cfg.SecondarySource, fromTS)
	if err != nil {
		return nil, fmt.Errorf("max secondary score timestamp: %w", err)
	}
	scoresTS, scoresPresent := combineScores(primaryTS, primaryPresent, secondaryTS, secondaryPresent)

	result := &Result{Categories: make(map[string]string)}
	ages := make(map[string]time.Duration)

	oddsDiag, oddsOK, oddsAge := evaluate(oddsTS, oddsPresent, now, m.cfg.OddsStaleFor)
	result.Categories[CategoryOdds] = oddsDiag
	if oddsPresent {
		ages[CategoryOdds] = oddsAge
	}

	scoresDiag, scoresOK, scoresAge := evaluate(scoresTS, scoresPresent, now, m.cfg.ScoresStaleFor)
	result.Categories[CategoryScores] = scoresDiag
	if scoresPresent {
		ages[CategoryScores] = scoresAge
	}

	result.OK = oddsOK && scoresOK
	metrics.RecordFreshness(result.OK, ages)

	m.log.WithFields(logrus.Fields{
		"ok":     result.OK,
		"odds":   result.Categories[CategoryOdds],
		"scores": result.Categories[CategoryScores],
	}).Info("Freshness check complete")

	return result, nil
}

// combineScores takes the later of the two source maxima; one source with
// data is enough, neither means missing.
func combineScores(primaryTS int64, primaryPresent bool, secondaryTS int64, secondaryPresent bool) (int64, bool) {
	switch {
	case primaryPresent && secondaryPresent:
		if secondaryTS > primaryTS {
			return secondaryTS, true
		}
		return primaryTS, true
	case primaryPresent:
		return primaryTS, true
	case secondaryPresent:
		return secondaryTS, true
	default:
		return 0, false
	}
}

// evaluate yields the category diagnostic. Age strictly greater than the
// threshold is stale; exactly at the threshold is still ok.
func evaluate(maxTS int64, present bool, now time.Time, threshold time.Duration) (string, bool, time.Duration) {
	if !present {
		return "missing", false, 0
	}

	age := now.Sub(time.Unix(maxTS, 0))
	if age > threshold {
		return fmt.Sprintf("stale age=%s", age.Truncate(time.Second)), false, age
	}
	return fmt.Sprintf("ok age=%s", age.Truncate(time.Second)), true, age
}

package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/dmcnulty/linecanon/internal/alerts"
	"github.com/dmcnulty/linecanon/internal/config"
	"github.com/dmcnulty/linecanon/internal/metrics"
	"github.com/dmcnulty/linecanon/internal/storage"
	"github.com/dmcnulty/linecanon/internal/teams"
	"github.com/sirupsen/logrus"
)

// Resolver merges Event rows that denote the same real-world contest under one
// canonical identifier. Grouping is content-addressed: a deterministic key
// over the canonicalized team pair and the contest's calendar date, so
// source-assigned ids and time-of-day rounding differences never matter.
type Resolver struct {
	cfg         *config.Config
	db          *storage.DB
	teams       *teams.Resolver
	alertSender alerts.Sender
	log         *logrus.Logger
}

// Stats summarizes one resolution pass
type Stats struct {
	Events        int `json:"events"`
	Groups        int `json:"duplicate_groups"`
	Merged        int `json:"merged"`
	Failed        int `json:"failed"`
	Flagged       int `json:"flagged_for_review"`
	ScoresDropped int `json:"scores_dropped"`
}

// New creates a new resolver
func New(cfg *config.Config, db *storage.DB, tr *teams.Resolver, alertSender alerts.Sender, log *logrus.Logger) *Resolver {
	return &Resolver{
		cfg:         cfg,
		db:          db,
		teams:       tr,
		alertSender: alertSender,
		log:         log,
	}
}

// Resolve partitions the Event table into duplicate groups, selects one
// canonical member per group and migrates every reference from the others to
// it. Each member migration commits or rolls back on its own, so a failed
// merge leaves that duplicate intact for the next run while already-migrated
// members stay migrated.
func (r *Resolver) Resolve(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	events, err := r.db.GetAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	stats.Events = len(events)

	counts, err := r.db.CountObservationsByEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}

	groups := make(map[string][]storage.Event)
	for _, event := range events {
		home, homeOK := r.teams.Canonical(event.HomeTeam)
		away, awayOK := r.teams.Canonical(event.AwayTeam)
		if !homeOK || !awayOK {
			// Best effort: an event whose teams have no known spelling stays
			// a singleton and is surfaced for manual mapping, never dropped
			// and never best-guess merged.
			stats.Flagged++
			metrics.TeamsUnresolved.Inc()
			if err := r.db.FlagEventForReview(ctx, event.ID); err != nil {
				r.log.WithError(err).WithField("event_id", event.ID).Error("Failed to flag event for review")
			}
			r.sendAlert(ctx, &alerts.Payload{
				Severity: alerts.SeverityWarn,
				Kind:     alerts.KindUnresolvedTeam,
				Summary:  "Event retained with unresolvable team name",
				Details: map[string]string{
					"event_id":  event.ID,
					"home_team": event.HomeTeam,
					"away_team": event.AwayTeam,
					"source":    event.Source,
				},
			})
			continue
		}

		key := identityKey(home, away, event.CommenceTS)
		groups[key] = append(groups[key], event)
	}

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		stats.Groups++

		canonical := r.selectCanonical(members, counts)
		for _, member := range members {
			if member.ID == canonical.ID {
				continue
			}

			entry, err := r.db.MergeEvents(ctx, canonical.ID, member.ID)
			if err != nil {
				stats.Failed++
				metrics.MergeFailures.Inc()
				r.log.WithError(err).WithFields(logrus.Fields{
					"canonical_id": canonical.ID,
					"duplicate_id": member.ID,
				}).Error("Merge failed, duplicate left in place for retry")
				continue
			}

			stats.Merged++
			r.log.WithFields(logrus.Fields{
				"canonical_id":  canonical.ID,
				"duplicate_id":  member.ID,
				"raw_migrated":  entry.RawMigrated,
				"rows_migrated": entry.RowsMigrated,
			}).Info("Merged duplicate event")

			if entry.ScoreDropped {
				stats.ScoresDropped++
				metrics.ScoresDropped.Inc()
				r.log.WithFields(logrus.Fields{
					"canonical_id": canonical.ID,
					"duplicate_id": member.ID,
				}).Warn("Dropped duplicate score during merge")
				r.sendAlert(ctx, &alerts.Payload{
					Severity: alerts.SeverityInfo,
					Kind:     alerts.KindScoreDropped,
					Summary:  "Duplicate score dropped in favor of canonical event's",
					Details: map[string]string{
						"canonical_id": canonical.ID,
						"duplicate_id": member.ID,
					},
				})
			}
		}
	}

	metrics.RecordResolve(time.Since(start), stats.Merged)

	r.log.WithFields(logrus.Fields{
		"events":         stats.Events,
		"groups":         stats.Groups,
		"merged":         stats.Merged,
		"failed":         stats.Failed,
		"flagged":        stats.Flagged,
		"scores_dropped": stats.ScoresDropped,
	}).Info("Event resolution complete")

	return stats, nil
}

// selectCanonical picks the surviving member of a duplicate group. Tie-break
// order: strictly greatest attached-observation count, then feed priority
// (primary, secondary, other), then lexicographically smallest id.
func (r *Resolver) selectCanonical(members []storage.Event, counts map[string]int64) storage.Event {
	var maxCount int64 = -1
	for _, m := range members {
		if counts[m.ID] > maxCount {
			maxCount = counts[m.ID]
		}
	}

	candidates := make([]storage.Event, 0, len(members))
	for _, m := range members {
		if counts[m.ID] == maxCount {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	bestRank := r.sourceRank(candidates[0].Source)
	for _, m := range candidates[1:] {
		if rank := r.sourceRank(m.Source); rank < bestRank {
			bestRank = rank
		}
	}
	ranked := candidates[:0]
	for _, m := range candidates {
		if r.sourceRank(m.Source) == bestRank {
			ranked = append(ranked, m)
		}
	}

	winner := ranked[0]
	for _, m := range ranked[1:] {
		if m.ID < winner.ID {
			winner = m
		}
	}
	return winner
}

func (r *Resolver) sourceRank(source string) int {
	switch source {
	case r.cfg.PrimarySource:
		return 0
	case r.cfg.SecondarySource:
		return 1
	default:
		return 2
	}
}

func (r *Resolver) sendAlert(ctx context.Context, payload *alerts.Payload) {
	if r.alertSender == nil {
		return
	}
	payload.Environment = r.cfg.Environment
	payload.Timestamp = time.Now()
	err := r.alertSender.Send(ctx, payload)
	if err != nil {
		r.log.WithError(err).Warn("Failed to send alert")
	}
	metrics.RecordAlert(string(payload.Kind), err)
}

// identityKey derives the duplicate-grouping key from canonicalized team
// names and the contest's calendar date. Team order is sorted away and only
// the date portion of the commence time participates, because sources round
// and format kickoff times differently.
func identityKey(homeTeam, awayTeam string, commenceTS int64) string {
	names := []string{teams.Normalize(homeTeam), teams.Normalize(awayTeam)}
	sort.Strings(names)

	date := time.Unix(commenceTS, 0).UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(names[0] + "|" + names[1] + "|" + date))
	return hex.EncodeToString(sum[:])
}

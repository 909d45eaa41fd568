package canonical

import (
	"sort"
	"strings"

	"github.com/dmcnulty/linecanon/internal/oddsmath"
	"github.com/dmcnulty/linecanon/internal/storage"
	"github.com/shopspring/decimal"
)

type partitionKey struct {
	EventID     string
	Bookmaker   string
	CollectedTS int64
	Point       string // totals only; empty otherwise
}

// partitionObservations groups rows by (event, bookmaker, collected-at).
// Partitions come back in deterministic key order.
func partitionObservations(rows []storage.RawObservation) [][]storage.RawObservation {
	return partition(rows, func(r storage.RawObservation) partitionKey {
		return partitionKey{EventID: r.EventID, Bookmaker: r.Bookmaker, CollectedTS: r.CollectedTS}
	})
}

// partitionTotals additionally keys on the line value, so an Over at 145.5 and
// an Under at 146.0 can never share a partition.
func partitionTotals(rows []storage.RawObservation) [][]storage.RawObservation {
	return partition(rows, func(r storage.RawObservation) partitionKey {
		key := partitionKey{EventID: r.EventID, Bookmaker: r.Bookmaker, CollectedTS: r.CollectedTS}
		if r.Point != nil {
			// Fixed-precision key so "146" and "146.0" land in one partition.
			key.Point = r.Point.StringFixed(2)
		} else {
			key.Point = "missing"
		}
		return key
	})
}

func partition(rows []storage.RawObservation, keyFn func(storage.RawObservation) partitionKey) [][]storage.RawObservation {
	byKey := make(map[partitionKey][]storage.RawObservation)
	var keys []partitionKey
	for _, r := range rows {
		key := keyFn(r)
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], r)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		if a.Bookmaker != b.Bookmaker {
			return a.Bookmaker < b.Bookmaker
		}
		if a.CollectedTS != b.CollectedTS {
			return a.CollectedTS < b.CollectedTS
		}
		return a.Point < b.Point
	})

	partitions := make([][]storage.RawObservation, 0, len(keys))
	for _, key := range keys {
		partitions = append(partitions, byKey[key])
	}
	return partitions
}

// buildSpread pairs a favorite leg (point < 0) with an underdog leg
// (point > 0) of equal magnitude, or aggregates a pick'em partition
// (point = 0 on every leg). On failure the skip reason is returned instead.
func (e *Engine) buildSpread(partition []storage.RawObservation, event storage.Event) (*storage.CanonicalSpread, string) {
	var favorites, underdogs, pickems []storage.RawObservation
	for _, r := range partition {
		if r.Point == nil {
			return nil, "missing_point"
		}
		switch r.Point.Sign() {
		case -1:
			favorites = append(favorites, r)
		case 1:
			underdogs = append(underdogs, r)
		default:
			pickems = append(pickems, r)
		}
	}

	if len(pickems) == len(partition) {
		return e.buildPickem(pickems, event)
	}
	if len(pickems) > 0 {
		// A zero leg mixed with handicapped legs is not a coherent market.
		return nil, "mixed_pickem"
	}
	if len(favorites) == 0 || len(underdogs) == 0 {
		return nil, "missing_leg"
	}

	// Legs of one line carry opposite points of equal magnitude; alternate
	// lines in the same partition pair only against their own mirror.
	for _, fav := range favorites {
		for _, dog := range underdogs {
			if !fav.Point.Neg().Equal(*dog.Point) {
				continue
			}
			if !commenceEqual(fav.CommenceTS, dog.CommenceTS) {
				continue
			}
			favTeam, _ := e.teams.Canonical(fav.Outcome)
			dogTeam, _ := e.teams.Canonical(dog.Outcome)
			return &storage.CanonicalSpread{
				EventID:       fav.EventID,
				Bookmaker:     fav.Bookmaker,
				CollectedTS:   fav.CollectedTS,
				FavoriteTeam:  favTeam,
				UnderdogTeam:  dogTeam,
				Spread:        fav.Point.Abs(),
				FavoritePrice: fav.Price,
				UnderdogPrice: dog.Price,
			}, ""
		}
	}
	return nil, "line_mismatch"
}

// buildPickem aggregates a point = 0 partition: maximum observed price per
// side, home team written into the favorite column at magnitude 0. The home
// designation is a representational convention, not a market signal.
func (e *Engine) buildPickem(partition []storage.RawObservation, event storage.Event) (*storage.CanonicalSpread, string) {
	home, _ := e.teams.Canonical(event.HomeTeam)
	away, _ := e.teams.Canonical(event.AwayTeam)

	var homePrice, awayPrice *int
	for _, r := range partition {
		team, _ := e.teams.Canonical(r.Outcome)
		price := r.Price
		switch team {
		case home:
			if homePrice == nil || price > *homePrice {
				homePrice = &price
			}
		case away:
			if awayPrice == nil || price > *awayPrice {
				awayPrice = &price
			}
		}
	}
	if homePrice == nil || awayPrice == nil {
		return nil, "missing_leg"
	}

	first := partition[0]
	return &storage.CanonicalSpread{
		EventID:       first.EventID,
		Bookmaker:     first.Bookmaker,
		CollectedTS:   first.CollectedTS,
		FavoriteTeam:  home,
		UnderdogTeam:  away,
		Spread:        decimal.Zero,
		FavoritePrice: *homePrice,
		UnderdogPrice: *awayPrice,
	}, ""
}

// buildTotal pairs an Over-prefixed leg with an Under-prefixed leg. The
// partition key already carries the line, so mismatched lines never meet here.
func buildTotal(partition []storage.RawObservation) (*storage.CanonicalTotal, string) {
	var over, under *storage.RawObservation
	for i := range partition {
		r := &partition[i]
		if r.Point == nil {
			return nil, "missing_point"
		}
		switch {
		case strings.HasPrefix(r.Outcome, "Over"):
			if over == nil {
				over = r
			}
		case strings.HasPrefix(r.Outcome, "Under"):
			if under == nil {
				under = r
			}
		}
	}
	if over == nil || under == nil {
		return nil, "missing_leg"
	}

	return &storage.CanonicalTotal{
		EventID:     over.EventID,
		Bookmaker:   over.Bookmaker,
		CollectedTS: over.CollectedTS,
		Total:       *over.Point,
		OverPrice:   over.Price,
		UnderPrice:  under.Price,
	}, ""
}

// buildMoneyline finds the home and away prices independently; either may be
// absent. A zero price is rejected at the point of computation, never coerced.
func (e *Engine) buildMoneyline(partition []storage.RawObservation, event storage.Event) (*storage.CanonicalMoneyline, int, string) {
	home, _ := e.teams.Canonical(event.HomeTeam)
	away, _ := e.teams.Canonical(event.AwayTeam)

	row := &storage.CanonicalMoneyline{
		EventID:     partition[0].EventID,
		Bookmaker:   partition[0].Bookmaker,
		CollectedTS: partition[0].CollectedTS,
		HomeTeam:    home,
		AwayTeam:    away,
	}

	rejected := 0
	for _, r := range partition {
		team, _ := e.teams.Canonical(r.Outcome)
		if team != home && team != away {
			continue
		}

		prob, err := oddsmath.ImpliedProbability(r.Price)
		if err != nil {
			rejected++
			continue
		}

		price := r.Price
		if team == home && row.HomePrice == nil {
			row.HomePrice = &price
			row.HomeImpliedProb = &prob
		} else if team == away && row.AwayPrice == nil {
			row.AwayPrice = &price
			row.AwayImpliedProb = &prob
		}
	}

	if row.HomePrice == nil && row.AwayPrice == nil {
		return nil, rejected, "missing_leg"
	}
	return row, rejected, ""
}

// commenceEqual tolerates a null commence time on either side
func commenceEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}

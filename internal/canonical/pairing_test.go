package canonical

import (
	"testing"

	"github.com/dmcnulty/linecanon/internal/storage"
	"github.com/dmcnulty/linecanon/internal/teams"
	"github.com/shopspring/decimal"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testEngine() *Engine {
	return &Engine{teams: teams.New()}
}

func spreadObs(eventID, bookmaker, outcome string, price int, point *decimal.Decimal, collectedTS int64) storage.RawObservation {
	return storage.RawObservation{
		Source:      "oddsapi",
		Sport:       "americanfootball_ncaaf",
		EventID:     eventID,
		HomeTeam:    "Ohio State",
		AwayTeam:    "Michigan",
		Bookmaker:   bookmaker,
		Market:      storage.MarketSpreads,
		Outcome:     outcome,
		Price:       price,
		Point:       point,
		CollectedTS: collectedTS,
	}
}

func TestBuildSpreadPairsFavoriteAndUnderdog(t *testing.T) {
	e := testEngine()
	event := storage.Event{ID: "ev1", HomeTeam: "Ohio State", AwayTeam: "Michigan"}
	partition := []storage.RawObservation{
		spreadObs("ev1", "fanduel", "Ohio State", -110, dec("-6.5"), 1700000000),
		spreadObs("ev1", "fanduel", "Michigan", -105, dec("6.5"), 1700000000),
	}

	row, reason := e.buildSpread(partition, event)
	if row == nil {
		t.Fatalf("expected a spread row, got skip reason %q", reason)
	}
	if row.FavoriteTeam != "Ohio State" || row.UnderdogTeam != "Michigan" {
		t.Errorf("favorite/underdog = %s/%s, want Ohio State/Michigan", row.FavoriteTeam, row.UnderdogTeam)
	}
	if !row.Spread.Equal(decimal.RequireFromString("6.5")) {
		t.Errorf("spread = %s, want 6.5", row.Spread)
	}
	if row.FavoritePrice != -110 || row.UnderdogPrice != -105 {
		t.Errorf("prices = %d/%d, want -110/-105", row.FavoritePrice, row.UnderdogPrice)
	}
}

func TestBuildSpreadPickemConvention(t *testing.T) {
	e := testEngine()
	event := storage.Event{ID: "ev1", HomeTeam: "Ohio State", AwayTeam: "Michigan"}

	// Observation order must not matter; the best price per side is kept and
	// the home team always lands in the favorite column at magnitude 0.
	orderings := [][]storage.RawObservation{
		{
			spreadObs("ev1", "fanduel", "Michigan", -115, dec("0"), 1700000000),
			spreadObs("ev1", "fanduel", "Ohio State", -105, dec("0"), 1700000000),
			spreadObs("ev1", "fanduel", "Ohio State", -110, dec("0"), 1700000000),
		},
		{
			spreadObs("ev1", "fanduel", "Ohio State", -110, dec("0"), 1700000000),
			spreadObs("ev1", "fanduel", "Ohio State", -105, dec("0"), 1700000000),
			spreadObs("ev1", "fanduel", "Michigan", -115, dec("0"), 1700000000),
		},
	}

	for i, partition := range orderings {
		row, reason := e.buildSpread(partition, event)
		if row == nil {
			t.Fatalf("ordering %d: expected a row, got skip reason %q", i, reason)
		}
		if !row.Spread.IsZero() {
			t.Errorf("ordering %d: spread = %s, want 0", i, row.Spread)
		}
		if row.FavoriteTeam != "Ohio State" {
			t.Errorf("ordering %d: favorite = %s, want home team Ohio State", i, row.FavoriteTeam)
		}
		if row.FavoritePrice != -105 {
			t.Errorf("ordering %d: favorite price = %d, want max -105", i, row.FavoritePrice)
		}
		if row.UnderdogPrice != -115 {
			t.Errorf("ordering %d: underdog price = %d, want -115", i, row.UnderdogPrice)
		}
	}
}

func TestBuildSpreadSkips(t *testing.T) {
	e := testEngine()
	event := storage.Event{ID: "ev1", HomeTeam: "Ohio State", AwayTeam: "Michigan"}

	tests := []struct {
		name       string
		partition  []storage.RawObservation
		wantReason string
	}{
		{
			name: "favorite leg only",
			partition: []storage.RawObservation{
				spreadObs("ev1", "fanduel", "Ohio State", -110, dec("-6.5"), 1700000000),
			},
			wantReason: "missing_leg",
		},
		{
			name: "mismatched magnitudes never pair",
			partition: []storage.RawObservation{
				spreadObs("ev1", "fanduel", "Ohio State", -110, dec("-6.5"), 1700000000),
				spreadObs("ev1", "fanduel", "Michigan", -105, dec("7"), 1700000000),
			},
			wantReason: "line_mismatch",
		},
		{
			name: "missing point is malformed",
			partition: []storage.RawObservation{
				spreadObs("ev1", "fanduel", "Ohio State", -110, nil, 1700000000),
				spreadObs("ev1", "fanduel", "Michigan", -105, dec("6.5"), 1700000000),
			},
			wantReason: "missing_point",
		},
		{
			name: "zero leg mixed with handicapped leg",
			partition: []storage.RawObservation{
				spreadObs("ev1", "fanduel", "Ohio State", -110, dec("0"), 1700000000),
				spreadObs("ev1", "fanduel", "Michigan", -105, dec("6.5"), 1700000000),
			},
			wantReason: "mixed_pickem",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, reason := e.buildSpread(tt.partition, event)
			if row != nil {
				t.Fatalf("expected skip, got row %+v", row)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func totalObs(outcome string, price int, point *decimal.Decimal) storage.RawObservation {
	return storage.RawObservation{
		Source:      "oddsapi",
		EventID:     "ev1",
		Bookmaker:   "fanduel",
		Market:      storage.MarketTotals,
		Outcome:     outcome,
		Price:       price,
		Point:       point,
		CollectedTS: 1700000000,
	}
}

func TestBuildTotalPairsIdenticalLines(t *testing.T) {
	partitions := partitionTotals([]storage.RawObservation{
		totalObs("Over", -110, dec("145.5")),
		totalObs("Under", -110, dec("145.5")),
	})
	if len(partitions) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(partitions))
	}

	row, reason := buildTotal(partitions[0])
	if row == nil {
		t.Fatalf("expected a total row, got skip reason %q", reason)
	}
	if !row.Total.Equal(decimal.RequireFromString("145.5")) {
		t.Errorf("total = %s, want 145.5", row.Total)
	}
	if row.OverPrice != -110 || row.UnderPrice != -110 {
		t.Errorf("prices = %d/%d, want -110/-110", row.OverPrice, row.UnderPrice)
	}
}

func TestTotalsMismatchedLinesNeverPair(t *testing.T) {
	partitions := partitionTotals([]storage.RawObservation{
		totalObs("Over", -110, dec("145.5")),
		totalObs("Under", -110, dec("146.0")),
	})
	if len(partitions) != 2 {
		t.Fatalf("expected 2 partitions for mismatched lines, got %d", len(partitions))
	}

	for _, partition := range partitions {
		row, reason := buildTotal(partition)
		if row != nil {
			t.Fatalf("mismatched lines produced a row: %+v", row)
		}
		if reason != "missing_leg" {
			t.Errorf("reason = %q, want missing_leg", reason)
		}
	}
}

func TestBuildMoneyline(t *testing.T) {
	e := testEngine()
	event := storage.Event{ID: "ev1", HomeTeam: "Ohio State", AwayTeam: "Michigan"}

	obs := func(outcome string, price int) storage.RawObservation {
		return storage.RawObservation{
			EventID:     "ev1",
			Bookmaker:   "fanduel",
			Market:      storage.MarketMoneyline,
			Outcome:     outcome,
			Price:       price,
			CollectedTS: 1700000000,
		}
	}

	t.Run("both sides present", func(t *testing.T) {
		row, rejected, reason := e.buildMoneyline([]storage.RawObservation{
			obs("Ohio State", -150),
			obs("Michigan", 130),
		}, event)
		if row == nil {
			t.Fatalf("expected a row, got skip reason %q", reason)
		}
		if rejected != 0 {
			t.Errorf("rejected = %d, want 0", rejected)
		}
		if row.HomePrice == nil || *row.HomePrice != -150 {
			t.Errorf("home price = %v, want -150", row.HomePrice)
		}
		if row.HomeImpliedProb == nil || *row.HomeImpliedProb <= 0 || *row.HomeImpliedProb >= 1 {
			t.Errorf("home implied prob = %v, want inside (0, 1)", row.HomeImpliedProb)
		}
		if row.AwayImpliedProb == nil {
			t.Fatal("away implied prob missing")
		}
		wantAway := 100.0 / 230.0
		diff := *row.AwayImpliedProb - wantAway
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-9 {
			t.Errorf("away implied prob = %f, want %f", *row.AwayImpliedProb, wantAway)
		}
	})

	t.Run("one side may be absent", func(t *testing.T) {
		row, _, reason := e.buildMoneyline([]storage.RawObservation{
			obs("Michigan", 130),
		}, event)
		if row == nil {
			t.Fatalf("expected a row, got skip reason %q", reason)
		}
		if row.HomePrice != nil {
			t.Errorf("home price = %v, want nil", row.HomePrice)
		}
		if row.AwayPrice == nil || *row.AwayPrice != 130 {
			t.Errorf("away price = %v, want 130", row.AwayPrice)
		}
	})

	t.Run("zero price rejected not coerced", func(t *testing.T) {
		row, rejected, reason := e.buildMoneyline([]storage.RawObservation{
			obs("Ohio State", 0),
		}, event)
		if row != nil {
			t.Fatalf("zero price produced a row: %+v", row)
		}
		if rejected != 1 {
			t.Errorf("rejected = %d, want 1", rejected)
		}
		if reason != "missing_leg" {
			t.Errorf("reason = %q, want missing_leg", reason)
		}
	})

	t.Run("outcome matching uses canonical spellings", func(t *testing.T) {
		ev := storage.Event{ID: "ev2", HomeTeam: "Mississippi", AwayTeam: "Michigan"}
		row, _, reason := e.buildMoneyline([]storage.RawObservation{
			{
				EventID:     "ev2",
				Bookmaker:   "fanduel",
				Market:      storage.MarketMoneyline,
				Outcome:     "Ole Miss",
				Price:       -200,
				CollectedTS: 1700000000,
			},
		}, ev)
		if row == nil {
			t.Fatalf("expected a row, got skip reason %q", reason)
		}
		if row.HomePrice == nil || *row.HomePrice != -200 {
			t.Errorf("alias outcome did not match home team: %+v", row)
		}
	})
}

func TestDerivationIsDeterministic(t *testing.T) {
	e := testEngine()
	event := storage.Event{ID: "ev1", HomeTeam: "Ohio State", AwayTeam: "Michigan"}
	rows := []storage.RawObservation{
		spreadObs("ev1", "fanduel", "Michigan", -105, dec("6.5"), 1700000000),
		spreadObs("ev1", "draftkings", "Ohio State", -108, dec("-7"), 1700000000),
		spreadObs("ev1", "draftkings", "Michigan", -112, dec("7"), 1700000000),
		spreadObs("ev1", "fanduel", "Ohio State", -110, dec("-6.5"), 1700000000),
	}

	derive := func() []storage.CanonicalSpread {
		var out []storage.CanonicalSpread
		for _, partition := range partitionObservations(rows) {
			if row, _ := e.buildSpread(partition, event); row != nil {
				out = append(out, *row)
			}
		}
		return out
	}

	first := derive()
	second := derive()
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 rows per run, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Bookmaker != second[i].Bookmaker ||
			!first[i].Spread.Equal(second[i].Spread) ||
			first[i].FavoriteTeam != second[i].FavoriteTeam {
			t.Errorf("run mismatch at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCommenceEqual(t *testing.T) {
	ts1, ts2 := int64(1700000000), int64(1700003600)

	tests := []struct {
		name string
		a, b *int64
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil tolerates any", nil, &ts1, true},
		{"equal values", &ts1, &ts1, true},
		{"different values", &ts1, &ts2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commenceEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("commenceEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

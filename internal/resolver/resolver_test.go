package resolver

import (
	"testing"
	"time"

	"github.com/dmcnulty/linecanon/internal/config"
	"github.com/dmcnulty/linecanon/internal/storage"
)

func TestIdentityKey(t *testing.T) {
	kickoff := time.Date(2025, 11, 8, 19, 30, 0, 0, time.UTC).Unix()

	t.Run("team order does not matter", func(t *testing.T) {
		a := identityKey("Alabama", "Auburn", kickoff)
		b := identityKey("Auburn", "Alabama", kickoff)
		if a != b {
			t.Errorf("keys differ for swapped teams: %s vs %s", a, b)
		}
	})

	t.Run("time of day does not matter", func(t *testing.T) {
		noon := time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC).Unix()
		late := time.Date(2025, 11, 8, 23, 59, 59, 0, time.UTC).Unix()
		if identityKey("Alabama", "Auburn", noon) != identityKey("Alabama", "Auburn", late) {
			t.Error("keys differ for same calendar date")
		}
	})

	t.Run("different dates differ", func(t *testing.T) {
		nextDay := time.Date(2025, 11, 9, 19, 30, 0, 0, time.UTC).Unix()
		if identityKey("Alabama", "Auburn", kickoff) == identityKey("Alabama", "Auburn", nextDay) {
			t.Error("keys equal across different dates")
		}
	})

	t.Run("punctuation variants collapse", func(t *testing.T) {
		if identityKey("Texas A&M", "Mississippi", kickoff) != identityKey("Texas A M", "Mississippi", kickoff) {
			t.Error("keys differ for punctuation variants of the same team")
		}
	})

	t.Run("different matchups differ", func(t *testing.T) {
		if identityKey("Alabama", "Auburn", kickoff) == identityKey("Alabama", "Georgia", kickoff) {
			t.Error("keys equal for different matchups")
		}
	})
}

func TestSelectCanonical(t *testing.T) {
	r := &Resolver{cfg: &config.Config{
		PrimarySource:   "oddsapi",
		SecondarySource: "cfbd",
	}}

	kickoff := time.Date(2025, 11, 8, 19, 30, 0, 0, time.UTC).Unix()
	event := func(id, source string) storage.Event {
		return storage.Event{ID: id, Source: source, CommenceTS: kickoff}
	}

	tests := []struct {
		name    string
		members []storage.Event
		counts  map[string]int64
		wantID  string
	}{
		{
			name: "strictly greatest observation count wins",
			members: []storage.Event{
				event("ev-a", "cfbd"),
				event("ev-b", "oddsapi"),
				event("ev-c", "cfbd"),
			},
			counts: map[string]int64{"ev-a": 5, "ev-b": 2, "ev-c": 1},
			wantID: "ev-a",
		},
		{
			name: "count tie broken by primary source",
			members: []storage.Event{
				event("ev-a", "cfbd"),
				event("ev-b", "oddsapi"),
			},
			counts: map[string]int64{"ev-a": 3, "ev-b": 3},
			wantID: "ev-b",
		},
		{
			name: "secondary source beats unknown source",
			members: []storage.Event{
				event("ev-a", "scraper"),
				event("ev-b", "cfbd"),
			},
			counts: map[string]int64{"ev-a": 1, "ev-b": 1},
			wantID: "ev-b",
		},
		{
			name: "full tie falls back to smallest id",
			members: []storage.Event{
				event("ev-c", "oddsapi"),
				event("ev-a", "oddsapi"),
				event("ev-b", "oddsapi"),
			},
			counts: map[string]int64{"ev-a": 2, "ev-b": 2, "ev-c": 2},
			wantID: "ev-a",
		},
		{
			name: "no observations anywhere still deterministic",
			members: []storage.Event{
				event("ev-z", "cfbd"),
				event("ev-y", "cfbd"),
			},
			counts: map[string]int64{},
			wantID: "ev-y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.selectCanonical(tt.members, tt.counts)
			if got.ID != tt.wantID {
				t.Errorf("selectCanonical = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

package analytics

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "analytics.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.Submit(InsertStreamer{ChannelID: 1, Name: "alpha"})
	s.Submit(InsertStreamer{ChannelID: 2, Name: "beta"})
	s.Flush()
	return s
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.read.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestInsertStreamerIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.Submit(InsertStreamer{ChannelID: 1, Name: "alpha"})
	s.Flush()
	if n := countRows(t, s, "streamers"); n != 2 {
		t.Fatalf("streamers = %d, want 2", n)
	}
}

func TestInsertPointsIfUpdatedSkipsFlatRuns(t *testing.T) {
	s := newTestStore(t)
	s.Submit(InsertPointsIfUpdated{ChannelID: 1, Value: 100, Info: Watching()})
	s.Submit(InsertPointsIfUpdated{ChannelID: 1, Value: 100, Info: Watching()})
	s.Submit(InsertPointsIfUpdated{ChannelID: 1, Value: 150, Info: Claimed()})
	// same value on another channel must still insert
	s.Submit(InsertPointsIfUpdated{ChannelID: 2, Value: 150, Info: Watching()})
	s.Flush()
	if n := countRows(t, s, "points"); n != 3 {
		t.Fatalf("points = %d, want 3", n)
	}
}

func testEvent(id string) model.Event {
	return model.Event{
		ID:                      id,
		ChannelID:               "1",
		Title:                   "who wins",
		PredictionWindowSeconds: 120,
		Outcomes: []model.Outcome{
			{ID: "o1", Title: "blue", TotalPoints: 5000, TotalUsers: 10},
			{ID: "o2", Title: "pink", TotalPoints: 1000, TotalUsers: 3},
		},
	}
}

func TestPredictionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ev := testEvent("ev1")

	// replayed opens collapse into one row
	s.Submit(UpsertPrediction{ChannelID: 1, Event: ev})
	s.Submit(UpsertPrediction{ChannelID: 1, Event: ev})
	s.Flush()
	if n := countRows(t, s, "predictions"); n != 1 {
		t.Fatalf("predictions = %d, want 1", n)
	}

	rowID, err := s.LastPredictionID(1, "ev1")
	if err != nil {
		t.Fatalf("last prediction id: %v", err)
	}

	live, err := s.LivePrediction(1, "ev1")
	if err != nil {
		t.Fatalf("live prediction: %v", err)
	}
	if live == nil || live.ID != rowID || live.PlacedBet.Placed() {
		t.Fatalf("live = %+v", live)
	}

	s.Submit(PlaceBet{ChannelID: 1, EventID: "ev1", OutcomeID: "o2", Points: 50})
	s.Flush()
	live, err = s.LivePrediction(1, "ev1")
	if err != nil {
		t.Fatalf("live after bet: %v", err)
	}
	if !live.PlacedBet.Placed() || live.PlacedBet.OutcomeID != "o2" || live.PlacedBet.Points != 50 {
		t.Fatalf("placed bet = %+v", live.PlacedBet)
	}

	winner := "o2"
	ev.Outcomes[1].TotalPoints = 2000
	s.Submit(EndPrediction{
		ChannelID: 1, EventID: "ev1",
		WinningOutcomeID: &winner,
		Outcomes:         ev.Outcomes,
		ClosedAt:         time.Now(),
	})
	s.Flush()

	live, err = s.LivePrediction(1, "ev1")
	if err != nil {
		t.Fatalf("live after close: %v", err)
	}
	if live != nil {
		t.Fatalf("closed prediction still live: %+v", live)
	}

	// the same event id may open again later as a fresh row
	s.Submit(UpsertPrediction{ChannelID: 1, Event: testEvent("ev2")})
	s.Submit(UpsertPrediction{ChannelID: 1, Event: ev})
	s.Flush()
	if n := countRows(t, s, "predictions"); n != 3 {
		t.Fatalf("predictions = %d, want 3", n)
	}
}

func TestTimeline(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.Submit(UpsertPrediction{ChannelID: 1, Event: testEvent("ev1"), At: base})
	s.Flush()
	rowID, err := s.LastPredictionID(1, "ev1")
	if err != nil {
		t.Fatalf("last prediction id: %v", err)
	}

	s.Submit(InsertPoints{ChannelID: 1, Value: 100, Info: FirstEntry(), At: base.Add(-time.Hour)})
	s.Submit(InsertPoints{ChannelID: 1, Value: 120, Info: Watching(), At: base.Add(1 * time.Minute)})
	s.Submit(InsertPoints{ChannelID: 1, Value: 70, Info: Prediction("ev1", rowID), At: base.Add(2 * time.Minute)})
	s.Submit(InsertPoints{ChannelID: 2, Value: 500, Info: Watching(), At: base.Add(3 * time.Minute)})
	s.Flush()

	entries, err := s.Timeline(base, base.Add(time.Hour), []int64{1, 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (pre-window row excluded)", len(entries))
	}

	first := entries[0]
	if first.Streamer != "alpha" || first.Points != 120 {
		t.Fatalf("first = %+v", first)
	}
	// difference reaches back to the row before the window
	if first.Difference == nil || *first.Difference != 20 {
		t.Fatalf("first difference = %v, want 20", first.Difference)
	}

	second := entries[1]
	if second.Difference == nil || *second.Difference != -50 {
		t.Fatalf("second difference = %v, want -50", second.Difference)
	}
	if second.Prediction == nil || second.Prediction.EventID != "ev1" {
		t.Fatalf("prediction join missed: %+v", second.Prediction)
	}

	third := entries[2]
	if third.Streamer != "beta" || third.Difference != nil {
		t.Fatalf("third = %+v", third)
	}
	if third.Prediction != nil {
		t.Fatalf("watching row should not join a prediction: %+v", third.Prediction)
	}
}

func TestPointsInfoEncoding(t *testing.T) {
	cases := []struct {
		info PointsInfo
		want string
	}{
		{FirstEntry(), `"FirstEntry"`},
		{Watching(), `"Watching"`},
		{Claimed(), `"CommunityPointsClaimed"`},
		{Prediction("ev1", 42), `{"Prediction":["ev1",42]}`},
	}
	for _, c := range cases {
		data, err := json.Marshal(c.info)
		if err != nil {
			t.Fatalf("marshal %v: %v", c.info, err)
		}
		if string(data) != c.want {
			t.Fatalf("marshal = %s, want %s", data, c.want)
		}
		var back PointsInfo
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != c.info {
			t.Fatalf("round trip %v != %v", back, c.info)
		}
	}

	var bad PointsInfo
	if err := json.Unmarshal([]byte(`"Sleeping"`), &bad); err == nil {
		t.Fatal("unknown variant accepted")
	}
}

func TestPlacedBetEncoding(t *testing.T) {
	data, err := json.Marshal(PlacedBet{})
	if err != nil || string(data) != `"None"` {
		t.Fatalf("none = %s, %v", data, err)
	}
	data, err = json.Marshal(BetPlaced("o1", 7500))
	if err != nil || string(data) != `{"Some":["o1",7500]}` {
		t.Fatalf("some = %s, %v", data, err)
	}
	var back PlacedBet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Placed() || back.OutcomeID != "o1" || back.Points != 7500 {
		t.Fatalf("back = %+v", back)
	}
}

package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Graze/Graze/internal/model"
)

// WorkUnit is one serialized write against the analytics database. Units are
// executed in submission order by the store's worker, each in its own
// transaction.
type WorkUnit interface {
	Execute(tx *sql.Tx) error
}

func nowOr(at time.Time) int64 {
	if at.IsZero() {
		return time.Now().UnixNano()
	}
	return at.UnixNano()
}

// InsertStreamer registers a mined broadcaster. Idempotent: re-inserting an
// existing id is a no-op.
type InsertStreamer struct {
	ChannelID int64
	Name      string
}

func (u InsertStreamer) Execute(tx *sql.Tx) error {
	_, err := tx.Exec(
		`INSERT INTO streamers (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		u.ChannelID, u.Name,
	)
	if err != nil {
		return fmt.Errorf("insert streamer %d: %w", u.ChannelID, err)
	}
	return nil
}

// InsertPoints appends a balance snapshot unconditionally.
type InsertPoints struct {
	ChannelID int64
	Value     int64
	Info      PointsInfo
	At        time.Time // zero means now
}

func (u InsertPoints) Execute(tx *sql.Tx) error {
	info, err := json.Marshal(u.Info)
	if err != nil {
		return fmt.Errorf("encode points info: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO points (channel_id, points_value, points_info, created_at_ns)
		 VALUES (?, ?, ?, ?)`,
		u.ChannelID, u.Value, string(info), nowOr(u.At),
	)
	if err != nil {
		return fmt.Errorf("insert points for %d: %w", u.ChannelID, err)
	}
	return nil
}

// InsertPointsIfUpdated appends a balance snapshot only when it differs from
// the channel's most recent row. Keeps the points table free of flat runs.
type InsertPointsIfUpdated struct {
	ChannelID int64
	Value     int64
	Info      PointsInfo
	At        time.Time
}

func (u InsertPointsIfUpdated) Execute(tx *sql.Tx) error {
	var last int64
	err := tx.QueryRow(
		`SELECT points_value FROM points WHERE channel_id = ?
		 ORDER BY created_at_ns DESC, id DESC LIMIT 1`,
		u.ChannelID,
	).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
		// no prior row, insert
	case err != nil:
		return fmt.Errorf("read last points for %d: %w", u.ChannelID, err)
	case last == u.Value:
		return nil
	}
	return InsertPoints{ChannelID: u.ChannelID, Value: u.Value, Info: u.Info, At: u.At}.Execute(tx)
}

// UpsertPrediction inserts a prediction row unless the channel's most recent
// row already carries the same event id. Replayed open/update payloads for a
// running event are therefore no-ops and the table stays append-only.
type UpsertPrediction struct {
	ChannelID int64
	Event     model.Event
	At        time.Time
}

func (u UpsertPrediction) Execute(tx *sql.Tx) error {
	var lastEvent string
	err := tx.QueryRow(
		`SELECT prediction_id FROM predictions WHERE channel_id = ?
		 ORDER BY created_at_ns DESC, id DESC LIMIT 1`,
		u.ChannelID,
	).Scan(&lastEvent)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("read last prediction for %d: %w", u.ChannelID, err)
	case lastEvent == u.Event.ID:
		return nil
	}

	outcomes, err := json.Marshal(u.Event.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO predictions
		 (channel_id, prediction_id, title, prediction_window_seconds, outcomes, placed_bet, created_at_ns)
		 VALUES (?, ?, ?, ?, ?, '"None"', ?)`,
		u.ChannelID, u.Event.ID, u.Event.Title, u.Event.PredictionWindowSeconds,
		string(outcomes), nowOr(u.At),
	)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", u.Event.ID, err)
	}
	return nil
}

// PlaceBet records a landed bet on the channel's open row for the event.
type PlaceBet struct {
	ChannelID int64
	EventID   string
	OutcomeID string
	Points    int64
}

func (u PlaceBet) Execute(tx *sql.Tx) error {
	bet, err := json.Marshal(BetPlaced(u.OutcomeID, u.Points))
	if err != nil {
		return fmt.Errorf("encode placed bet: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE predictions SET placed_bet = ?
		 WHERE channel_id = ? AND prediction_id = ? AND closed_at_ns IS NULL`,
		string(bet), u.ChannelID, u.EventID,
	)
	if err != nil {
		return fmt.Errorf("record bet on %s: %w", u.EventID, err)
	}
	return nil
}

// EndPrediction sets the terminal fields on the channel's open row for the
// event: final outcome totals, the winner, and the close time.
type EndPrediction struct {
	ChannelID        int64
	EventID          string
	WinningOutcomeID *string
	Outcomes         []model.Outcome
	ClosedAt         time.Time
}

func (u EndPrediction) Execute(tx *sql.Tx) error {
	outcomes, err := json.Marshal(u.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE predictions SET winning_outcome_id = ?, outcomes = ?, closed_at_ns = ?
		 WHERE channel_id = ? AND prediction_id = ? AND closed_at_ns IS NULL`,
		u.WinningOutcomeID, string(outcomes), nowOr(u.ClosedAt),
		u.ChannelID, u.EventID,
	)
	if err != nil {
		return fmt.Errorf("end prediction %s: %w", u.EventID, err)
	}
	return nil
}

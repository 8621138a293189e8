package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Graze/Graze/internal/model"
)

// PredictionRow is one persisted prediction lifecycle row.
type PredictionRow struct {
	ID               int64           `json:"id"`
	ChannelID        int64           `json:"channel_id"`
	EventID          string          `json:"event_id"`
	Title            string          `json:"title"`
	WindowSeconds    int64           `json:"prediction_window_seconds"`
	Outcomes         []model.Outcome `json:"outcomes"`
	WinningOutcomeID *string         `json:"winning_outcome_id"`
	PlacedBet        PlacedBet       `json:"placed_bet"`
	CreatedAt        time.Time       `json:"created_at"`
	ClosedAt         *time.Time      `json:"closed_at"`
}

// LastPredictionID returns the surrogate id of the newest prediction row for
// the channel/event pair, for use in Prediction-tagged point rows.
func (s *Store) LastPredictionID(channelID int64, eventID string) (int64, error) {
	var id int64
	err := s.read.QueryRow(
		`SELECT id FROM predictions WHERE channel_id = ? AND prediction_id = ?
		 ORDER BY created_at_ns DESC, id DESC LIMIT 1`,
		channelID, eventID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no prediction row for channel %d event %s", channelID, eventID)
	}
	if err != nil {
		return 0, fmt.Errorf("last prediction id: %w", err)
	}
	return id, nil
}

// LivePrediction returns the channel's open row for the event, if any.
func (s *Store) LivePrediction(channelID int64, eventID string) (*PredictionRow, error) {
	row := s.read.QueryRow(
		`SELECT id, channel_id, prediction_id, title, prediction_window_seconds,
		        outcomes, winning_outcome_id, placed_bet, created_at_ns, closed_at_ns
		 FROM predictions
		 WHERE channel_id = ? AND prediction_id = ? AND closed_at_ns IS NULL
		 ORDER BY created_at_ns DESC, id DESC LIMIT 1`,
		channelID, eventID,
	)
	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("live prediction: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*PredictionRow, error) {
	var (
		p         PredictionRow
		outcomes  string
		placedBet string
		createdNS int64
		closedNS  sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.ChannelID, &p.EventID, &p.Title, &p.WindowSeconds,
		&outcomes, &p.WinningOutcomeID, &placedBet, &createdNS, &closedNS)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outcomes), &p.Outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(placedBet), &p.PlacedBet); err != nil {
		return nil, fmt.Errorf("decode placed bet: %w", err)
	}
	p.CreatedAt = time.Unix(0, createdNS).UTC()
	if closedNS.Valid {
		t := time.Unix(0, closedNS.Int64).UTC()
		p.ClosedAt = &t
	}
	return &p, nil
}

// TimelineEntry is one point row projected for the timeline query, with the
// windowed difference against the channel's previous row and the referenced
// prediction when the row is Prediction-tagged.
type TimelineEntry struct {
	ChannelID  int64          `json:"channel_id"`
	Streamer   string         `json:"streamer"`
	Points     int64          `json:"points_value"`
	Difference *int64         `json:"difference"`
	Info       PointsInfo     `json:"points_info"`
	CreatedAt  time.Time      `json:"created_at"`
	Prediction *PredictionRow `json:"prediction,omitempty"`
}

// Timeline returns the point rows for the given channels in [from, to],
// oldest first. Difference is nil on each channel's first row in the window.
func (s *Store) Timeline(from, to time.Time, channelIDs []int64) ([]TimelineEntry, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channelIDs)), ",")
	var args []any
	for _, id := range channelIDs {
		args = append(args, id)
	}
	args = append(args, from.UnixNano(), to.UnixNano())

	// The LAG window runs over the channel's full history so the first row
	// inside the window still gets a difference when an older row exists.
	query := fmt.Sprintf(`
		SELECT pts.channel_id, pts.name, pts.points_value, pts.difference, pts.points_info, pts.created_at_ns,
		       pr.id, pr.channel_id, pr.prediction_id, pr.title, pr.prediction_window_seconds,
		       pr.outcomes, pr.winning_outcome_id, pr.placed_bet, pr.created_at_ns, pr.closed_at_ns
		FROM (
			SELECT p.id AS point_id, p.channel_id, s.name, p.points_value,
			       p.points_value - LAG(p.points_value) OVER (
			           PARTITION BY p.channel_id ORDER BY p.created_at_ns, p.id
			       ) AS difference,
			       p.points_info, p.created_at_ns
			FROM points p
			JOIN streamers s ON s.id = p.channel_id
			WHERE p.channel_id IN (%s)
		) pts
		LEFT JOIN predictions pr
			ON pr.id = json_extract(pts.points_info, '$.Prediction[1]')
		WHERE pts.created_at_ns BETWEEN ? AND ?
		ORDER BY pts.created_at_ns, pts.point_id`, placeholders)

	rows, err := s.read.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineEntry
	for rows.Next() {
		var (
			e           TimelineEntry
			diff        sql.NullInt64
			info        string
			createdNS   int64
			prID        sql.NullInt64
			prChannel   sql.NullInt64
			prEvent     sql.NullString
			prTitle     sql.NullString
			prWindow    sql.NullInt64
			prOutcomes  sql.NullString
			prWinner    sql.NullString
			prPlacedBet sql.NullString
			prCreatedNS sql.NullInt64
			prClosedNS  sql.NullInt64
		)
		err := rows.Scan(&e.ChannelID, &e.Streamer, &e.Points, &diff, &info, &createdNS,
			&prID, &prChannel, &prEvent, &prTitle, &prWindow,
			&prOutcomes, &prWinner, &prPlacedBet, &prCreatedNS, &prClosedNS)
		if err != nil {
			return nil, fmt.Errorf("timeline scan: %w", err)
		}
		if diff.Valid {
			e.Difference = &diff.Int64
		}
		if err := json.Unmarshal([]byte(info), &e.Info); err != nil {
			return nil, fmt.Errorf("decode points info: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdNS).UTC()
		if prID.Valid {
			p := PredictionRow{
				ID:            prID.Int64,
				ChannelID:     prChannel.Int64,
				EventID:       prEvent.String,
				Title:         prTitle.String,
				WindowSeconds: prWindow.Int64,
				CreatedAt:     time.Unix(0, prCreatedNS.Int64).UTC(),
			}
			if prWinner.Valid {
				w := prWinner.String
				p.WinningOutcomeID = &w
			}
			if prOutcomes.Valid {
				if err := json.Unmarshal([]byte(prOutcomes.String), &p.Outcomes); err != nil {
					return nil, fmt.Errorf("decode outcomes: %w", err)
				}
			}
			if prPlacedBet.Valid {
				if err := json.Unmarshal([]byte(prPlacedBet.String), &p.PlacedBet); err != nil {
					return nil, fmt.Errorf("decode placed bet: %w", err)
				}
			}
			if prClosedNS.Valid {
				t := time.Unix(0, prClosedNS.Int64).UTC()
				p.ClosedAt = &t
			}
			e.Prediction = &p
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package analytics

import (
	"encoding/json"
	"fmt"
)

// PointsInfo explains why a point row was recorded. Wire form is a bare
// string for the unit variants and a single-key mapping for Prediction:
//
//	"Watching"
//	{"Prediction": ["event-id", 42]}
//
// The Prediction payload references the prediction row the balance change
// belongs to.
type PointsInfo struct {
	kind            string
	eventID         string
	predictionRowID int64
}

const (
	infoFirstEntry = "FirstEntry"
	infoWatching   = "Watching"
	infoClaimed    = "CommunityPointsClaimed"
	infoPrediction = "Prediction"
)

// FirstEntry marks the initial balance recorded when mining starts.
func FirstEntry() PointsInfo { return PointsInfo{kind: infoFirstEntry} }

// Watching marks a passive balance change observed while watching.
func Watching() PointsInfo { return PointsInfo{kind: infoWatching} }

// Claimed marks a balance change from a claimed community-points bonus.
func Claimed() PointsInfo { return PointsInfo{kind: infoClaimed} }

// Prediction marks a balance change attributed to a prediction row.
func Prediction(eventID string, predictionRowID int64) PointsInfo {
	return PointsInfo{kind: infoPrediction, eventID: eventID, predictionRowID: predictionRowID}
}

// Kind returns the variant name.
func (p PointsInfo) Kind() string { return p.kind }

// PredictionRef returns the referenced event and prediction row id, valid
// only when Kind() == "Prediction".
func (p PointsInfo) PredictionRef() (string, int64, bool) {
	if p.kind != infoPrediction {
		return "", 0, false
	}
	return p.eventID, p.predictionRowID, true
}

func (p PointsInfo) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case infoFirstEntry, infoWatching, infoClaimed:
		return json.Marshal(p.kind)
	case infoPrediction:
		return json.Marshal(map[string][2]any{
			infoPrediction: {p.eventID, p.predictionRowID},
		})
	}
	return nil, fmt.Errorf("points info has no variant set")
}

func (p *PointsInfo) UnmarshalJSON(data []byte) error {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		switch unit {
		case infoFirstEntry, infoWatching, infoClaimed:
			*p = PointsInfo{kind: unit}
			return nil
		}
		return fmt.Errorf("unknown points info variant %q", unit)
	}
	var tagged map[string][2]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decode points info: %w", err)
	}
	payload, ok := tagged[infoPrediction]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("points info mapping must have exactly the Prediction key")
	}
	var out PointsInfo
	out.kind = infoPrediction
	if err := json.Unmarshal(payload[0], &out.eventID); err != nil {
		return fmt.Errorf("decode prediction event id: %w", err)
	}
	if err := json.Unmarshal(payload[1], &out.predictionRowID); err != nil {
		return fmt.Errorf("decode prediction row id: %w", err)
	}
	*p = out
	return nil
}

// PlacedBet records whether a bet landed on a prediction row. Wire form is
// "None" or {"Some": ["outcome-id", 7500]}.
type PlacedBet struct {
	OutcomeID string
	Points    int64
	some      bool
}

// BetPlaced builds the Some variant.
func BetPlaced(outcomeID string, points int64) PlacedBet {
	return PlacedBet{OutcomeID: outcomeID, Points: points, some: true}
}

// Placed reports whether a bet was recorded.
func (b PlacedBet) Placed() bool { return b.some }

func (b PlacedBet) MarshalJSON() ([]byte, error) {
	if !b.some {
		return json.Marshal("None")
	}
	return json.Marshal(map[string][2]any{"Some": {b.OutcomeID, b.Points}})
}

func (b *PlacedBet) UnmarshalJSON(data []byte) error {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		if unit != "None" {
			return fmt.Errorf("unknown placed bet variant %q", unit)
		}
		*b = PlacedBet{}
		return nil
	}
	var tagged map[string][2]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decode placed bet: %w", err)
	}
	payload, ok := tagged["Some"]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("placed bet mapping must have exactly the Some key")
	}
	var out PlacedBet
	out.some = true
	if err := json.Unmarshal(payload[0], &out.OutcomeID); err != nil {
		return fmt.Errorf("decode bet outcome: %w", err)
	}
	if err := json.Unmarshal(payload[1], &out.Points); err != nil {
		return fmt.Errorf("decode bet points: %w", err)
	}
	*b = out
	return nil
}

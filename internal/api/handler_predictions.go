package api

import (
	"net/http"

	"github.com/Graze/Graze/internal/service"
)

type betRequest struct {
	EventID   string `json:"event_id"`
	OutcomeID string `json:"outcome_id,omitempty"`
	Points    int64  `json:"points,omitempty"`
}

type betResponse struct {
	EventID   string `json:"event_id"`
	OutcomeID string `json:"outcome_id"`
	Points    int64  `json:"points"`
}

// HandlePlaceBet handles POST /api/predictions/bet/{name}. Explicit bets
// answer 202, strategy-evaluated ones 201.
func HandlePlaceBet(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req betRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.EventID == "" {
			writeInvalidArgument(w, "event_id is required")
			return
		}
		bet, explicit, err := cp.PlaceBet(r.Context(), PathParam(r, "name"), service.BetRequest{
			EventID:   req.EventID,
			OutcomeID: req.OutcomeID,
			Points:    req.Points,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		status := http.StatusCreated
		if explicit {
			status = http.StatusAccepted
		}
		WriteJSON(w, status, betResponse{
			EventID:   req.EventID,
			OutcomeID: bet.OutcomeID,
			Points:    bet.Points,
		})
	})
}

// HandleLivePredictions handles GET /api/predictions/live.
func HandleLivePredictions(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		WritePage(w, http.StatusOK, cp.LivePredictions(), pg)
	})
}

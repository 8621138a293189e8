package api

import (
	"net/http"
	"time"

	"github.com/Graze/Graze/internal/service"
)

type timelineRequest struct {
	Channels []int64 `json:"channels,omitempty"`
	From     string  `json:"from"`
	To       string  `json:"to"`
}

// HandleTimeline handles POST /api/analytics/timeline.
func HandleTimeline(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req timelineRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		from, err := time.Parse(time.RFC3339Nano, req.From)
		if err != nil {
			writeInvalidArgument(w, "from: invalid RFC3339 timestamp")
			return
		}
		to, err := time.Parse(time.RFC3339Nano, req.To)
		if err != nil {
			writeInvalidArgument(w, "to: invalid RFC3339 timestamp")
			return
		}
		if !from.Before(to) {
			writeInvalidArgument(w, "from: must be before to")
			return
		}
		entries, svcErr := cp.Timeline(from, to, req.Channels)
		if svcErr != nil {
			writeServiceError(w, svcErr)
			return
		}
		WriteJSON(w, http.StatusOK, entries)
	})
}

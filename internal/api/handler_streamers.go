package api

import (
	"net/http"

	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/service"
)

// HandleAgentState handles GET /api.
func HandleAgentState(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cp.State())
	})
}

// HandleLiveStreamers handles GET /api/streamers/live.
func HandleLiveStreamers(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cp.LiveStreamers())
	})
}

// HandleGetStreamer handles GET /api/streamers/{name}.
func HandleGetStreamer(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := cp.Streamer(PathParam(r, "name"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	})
}

type mineRequest struct {
	Config config.ConfigType `json:"config"`
}

// HandleMineStreamer handles PUT /api/streamers/mine/{name}.
func HandleMineStreamer(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mineRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		snap, err := cp.Mine(r.Context(), PathParam(r, "name"), req.Config)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, snap)
	})
}

// HandleUnmineStreamer handles DELETE /api/streamers/mine/{name}.
func HandleUnmineStreamer(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := cp.Unmine(PathParam(r, "name")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

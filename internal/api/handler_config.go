package api

import (
	"net/http"

	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/service"
)

// HandleListPresets handles GET /api/config/presets.
func HandleListPresets(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cp.Presets())
	})
}

// HandleUpsertPreset handles POST /api/config/presets.
func HandleUpsertPreset(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req service.NamedPreset
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.UpsertPreset(req.Name, req.Config); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// HandleDeletePreset handles DELETE /api/config/presets/{name}.
func HandleDeletePreset(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := cp.DeletePreset(PathParam(r, "name")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

type streamerConfigRequest struct {
	Config config.ConfigType `json:"config"`
}

// HandleSetStreamerConfig handles POST /api/config/streamer/{name}.
func HandleSetStreamerConfig(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req streamerConfigRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.SetStreamerConfig(PathParam(r, "name"), req.Config); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// HandleWatchPriority handles GET /api/config/watch_priority.
func HandleWatchPriority(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cp.WatchPriority())
	})
}

// HandleSetWatchPriority handles POST /api/config/watch_priority.
func HandleSetWatchPriority(cp *service.ControlPlane) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var names []string
		if err := DecodeBody(r, &names); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.SetWatchPriority(names); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

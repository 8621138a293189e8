package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Graze/Graze/internal/logbuf"
)

const logPageSize = 50

// HandleLogs handles GET /api/logs?page=N. Page 0 is the newest lines; the
// response is HTML, not the JSON envelope.
func HandleLogs(ring *logbuf.Ring) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if v := r.URL.Query().Get("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeInvalidArgument(w, "page: must be a non-negative integer")
				return
			}
			page = n
		}
		lines := ring.Tail(logPageSize, page*logPageSize)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<!DOCTYPE html>\n<html><body style=\"background:#111;color:#ddd\"><pre>\n")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", logbuf.RenderHTML(line))
		}
		fmt.Fprintf(w, "</pre></body></html>\n")
	})
}

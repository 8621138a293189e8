package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/logbuf"
	"github.com/Graze/Graze/internal/model"
	"github.com/Graze/Graze/internal/poller"
	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/service"
	"github.com/Graze/Graze/internal/strategy"
	"github.com/Graze/Graze/internal/twitch"
)

type stubPlatform struct {
	ids     map[string]int64
	balance int64
}

func (s *stubPlatform) StreamerMetadata(_ context.Context, logins []string) ([]*twitch.ChannelInfo, error) {
	out := make([]*twitch.ChannelInfo, len(logins))
	for i, login := range logins {
		if id, ok := s.ids[login]; ok {
			out[i] = &twitch.ChannelInfo{ID: id, Login: login}
		}
	}
	return out, nil
}

func (s *stubPlatform) ChannelPoints(_ context.Context, logins []string) ([]twitch.PointsBalance, error) {
	out := make([]twitch.PointsBalance, len(logins))
	for i := range logins {
		out[i] = twitch.PointsBalance{Balance: s.balance}
	}
	return out, nil
}

func (s *stubPlatform) MakePrediction(context.Context, int64, string, string) error { return nil }

type stubRouter struct{}

func (stubRouter) Attach(int64)          {}
func (stubRouter) Detach(int64)          {}
func (stubRouter) ApplyLive(poller.Live) {}

type stubRecorder struct{}

func (stubRecorder) Submit(analytics.WorkUnit) {}
func (stubRecorder) Flush()                    {}
func (stubRecorder) LivePrediction(int64, string) (*analytics.PredictionRow, error) {
	return nil, nil
}
func (stubRecorder) Timeline(time.Time, time.Time, []int64) ([]analytics.TimelineEntry, error) {
	return nil, nil
}

func presetConfig() config.StreamerConfig {
	return config.StreamerConfig{
		Prediction: config.PredictionConfig{
			Strategy: strategy.Strategy{Detailed: &strategy.Detailed{
				Default: strategy.DefaultPrediction{
					MinPercentage: 0.40,
					MaxPercentage: 0.60,
					Points:        strategy.Points{MaxValue: 1000, Percent: 0.10},
				},
			}},
		},
	}
}

func newTestHandler(t *testing.T) (http.Handler, *registry.Registry) {
	t.Helper()

	cfg := &config.Config{Streamers: config.NewOrdered[config.ConfigType]()}
	cfg.Presets = config.NewOrdered[config.StreamerConfig]()
	cfg.Presets.Set("small", presetConfig())
	cfg.Streamers.Set("alpha", config.ConfigType{Preset: "small"})

	reg := registry.New(1000, "miner")
	reg.Add(&registry.Broadcaster{
		ID:     1,
		Name:   "alpha",
		Config: registry.NewConfigHandle("small", presetConfig()),
	})

	cp := service.New(service.Options{
		Config:   cfg,
		File:     config.NewFile(filepath.Join(t.TempDir(), "config.yaml")),
		Registry: reg,
		Router:   stubRouter{},
		Store:    stubRecorder{},
		Platform: &stubPlatform{ids: map[string]int64{"beta": 2}, balance: 500},
		Logger:   zerolog.Nop(),
	})

	ring := logbuf.New(100)
	ring.Write([]byte("\x1b[32mINF\x1b[0m agent started\n"))
	return NewServer("127.0.0.1:0", cp, ring, 1<<20).Handler(), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return resp.Error.Code
}

func TestAgentStateEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/api", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st service.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.UserLogin != "miner" || len(st.Streamers) != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestGetStreamerNotFoundEnvelope(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/api/streamers/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if errCode(t, rec) != "NOT_FOUND" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMineAndUnmineOverHTTP(t *testing.T) {
	h, reg := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/api/streamers/mine/beta", `{"config":{"Preset":"small"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("mine status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !reg.Has(2) {
		t.Fatal("beta not registered after mine")
	}

	rec = do(t, h, http.MethodPut, "/api/streamers/mine/beta", `{"config":{"Preset":"small"}}`)
	if rec.Code != http.StatusConflict || errCode(t, rec) != "CONFLICT" {
		t.Fatalf("duplicate mine = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, "/api/streamers/mine/beta", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unmine status = %d", rec.Code)
	}
	if reg.Has(2) {
		t.Fatal("beta still registered after unmine")
	}
}

func TestMineRejectsUnknownBodyField(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodPut, "/api/streamers/mine/beta", `{"config":{"Preset":"small"},"bogus":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPlaceBetStatuses(t *testing.T) {
	h, reg := newTestHandler(t)
	reg.UpsertPrediction(1, model.Event{
		ID: "ev1",
		Outcomes: []model.Outcome{
			{ID: "o1", TotalPoints: 450},
			{ID: "o2", TotalPoints: 550},
		},
	})

	rec := do(t, h, http.MethodPost, "/api/predictions/bet/alpha", `{"event_id":"ev1","outcome_id":"o2","points":100}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("explicit bet status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp betResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OutcomeID != "o2" || resp.Points != 100 {
		t.Fatalf("resp = %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/predictions/bet/alpha", `{"event_id":"ev1","outcome_id":"o1","points":50}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat bet status = %d", rec.Code)
	}
}

func TestStrategyBetReturnsCreated(t *testing.T) {
	h, reg := newTestHandler(t)
	reg.UpsertPrediction(1, model.Event{
		ID: "ev2",
		Outcomes: []model.Outcome{
			{ID: "o1", TotalPoints: 450},
			{ID: "o2", TotalPoints: 550},
		},
	})

	rec := do(t, h, http.MethodPost, "/api/predictions/bet/alpha", `{"event_id":"ev2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("strategy bet status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp betResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OutcomeID != "o1" || resp.Points != 50 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestLivePredictionsPage(t *testing.T) {
	h, reg := newTestHandler(t)
	reg.UpsertPrediction(1, model.Event{ID: "ev1", Outcomes: []model.Outcome{{ID: "o1"}, {ID: "o2"}}})

	rec := do(t, h, http.MethodGet, "/api/predictions/live?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page PageResponse[service.LivePredictionView]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].Event.ID != "ev1" {
		t.Fatalf("page = %+v", page)
	}
}

func TestPresetLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/config/presets", `{"name":"big","config":{"follow_raid":true,"prediction":{"strategy":{"Detailed":{"default":{"max_percentage":60,"min_percentage":40,"points":{"max_value":1000,"percent":10}}}},"filters":null}}}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("upsert status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, "/api/config/presets/small", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-use delete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/config/presets/big", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestWatchPriorityValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/config/watch_priority", `["ghost"]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/config/watch_priority", `["alpha"]`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/config/watch_priority", "")
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "alpha" {
		t.Fatalf("names = %v", names)
	}
}

func TestTimelineRejectsBadTimestamps(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/analytics/timeline", `{"from":"yesterday","to":"2026-08-01T00:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/analytics/timeline", `{"from":"2026-08-02T00:00:00Z","to":"2026-08-01T00:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/analytics/timeline", `{"from":"2026-08-01T00:00:00Z","to":"2026-08-02T00:00:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestLogsServeHTML(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/logs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), `<span style="color:green">INF</span> agent started`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/logs?page=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad page status = %d", rec.Code)
	}
}

package twitch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveSpadeURL(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	settingsURL := srv.URL + "/config/settings."
	mux.HandleFunc("GET /somechannel", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><script src="`+settingsURL+`abcdef.js"></script></html>`)
	})
	mux.HandleFunc("GET /config/settings.abcdef.js", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `window.settings={"spade_url":"https://spade.example/track","other":1}`)
	})

	client := NewSpadeClient(srv.URL, "testtoken")
	client.settingsPrefixes = []string{settingsURL}

	url, err := client.ResolveURL(context.Background(), "somechannel")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "https://spade.example/track" {
		t.Fatalf("unexpected spade url %q", url)
	}
}

func TestResolveSpadeURLFallbackMarker(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	primary := srv.URL + "/primary/settings."
	fallback := srv.URL + "/fallback/settings."
	mux.HandleFunc("GET /chan", func(w http.ResponseWriter, r *http.Request) {
		// page only carries the second marker
		io.WriteString(w, `<script src="`+fallback+`v2.js"></script>`)
	})
	mux.HandleFunc("GET /fallback/settings.v2.js", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"spade_url":"https://spade.example/v2"}`)
	})

	client := NewSpadeClient(srv.URL, "testtoken")
	client.settingsPrefixes = []string{primary, fallback}

	url, err := client.ResolveURL(context.Background(), "chan")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "https://spade.example/v2" {
		t.Fatalf("unexpected spade url %q", url)
	}
}

func TestSendMinuteWatched(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		if got := r.Header.Get("Authorization"); got != "OAuth testtoken" {
			t.Errorf("bad Authorization %q", got)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewSpadeClient("", "testtoken")
	bid := "b2"
	err := client.SendMinuteWatched(context.Background(), srv.URL, MinuteWatched{
		ChannelID:   "1",
		BroadcastID: &bid,
		Live:        true,
		Channel:     "somechannel",
		UserID:      42,
		Login:       "me",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	decoded, err := base64.URLEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		t.Fatalf("body is not url-safe base64: %v", err)
	}
	var events []struct {
		Event      string        `json:"event"`
		Properties MinuteWatched `json:"properties"`
	}
	if err := json.Unmarshal(decoded, &events); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(events) != 1 || events[0].Event != "minute-watched" {
		t.Fatalf("unexpected payload: %+v", events)
	}
	props := events[0].Properties
	if props.Player != "site" || props.PlayerState != "Playing" {
		t.Fatalf("player constants missing: %+v", props)
	}
	if props.ChannelID != "1" || props.UserID != 42 {
		t.Fatalf("unexpected properties: %+v", props)
	}
}

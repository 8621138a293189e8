package twitch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// DefaultSiteURL is the platform's web frontend, scraped for the spade URL.
const DefaultSiteURL = "https://www.twitch.tv"

// SpadeClient resolves the ephemeral telemetry endpoint and posts viewership
// heartbeats to it.
type SpadeClient struct {
	siteURL string
	token   string
	http    *http.Client

	// settingsPrefixes are the script URL markers searched for in the
	// channel page; the platform has shipped both over time.
	settingsPrefixes []string
}

// NewSpadeClient builds a client for the given site base URL (tests point
// this at a local server).
func NewSpadeClient(siteURL, token string) *SpadeClient {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	return &SpadeClient{
		siteURL: siteURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		settingsPrefixes: []string{
			"https://static.twitchcdn.net/config/settings.",
			"https://assets.twitch.tv/config/settings.",
		},
	}
}

func (c *SpadeClient) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", chromeUserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ResolveURL scrapes a channel page for the settings script and extracts the
// spade URL from it.
func (c *SpadeClient) ResolveURL(ctx context.Context, channel string) (string, error) {
	page, err := c.fetch(ctx, c.siteURL+"/"+channel)
	if err != nil {
		return "", fmt.Errorf("fetch channel page: %w", err)
	}
	var lastErr error
	for _, prefix := range c.settingsPrefixes {
		url, err := c.extract(ctx, page, prefix)
		if err == nil {
			return url, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("resolve spade url: %w", lastErr)
}

func (c *SpadeClient) extract(ctx context.Context, page, prefix string) (string, error) {
	_, after, found := strings.Cut(page, prefix)
	if !found {
		return "", fmt.Errorf("settings marker %q not in page", prefix)
	}
	version, _, found := strings.Cut(after, ".js")
	if !found {
		return "", fmt.Errorf("settings script suffix missing")
	}
	script, err := c.fetch(ctx, prefix+version+".js")
	if err != nil {
		return "", fmt.Errorf("fetch settings script: %w", err)
	}
	_, after, found = strings.Cut(script, `"spade_url":"`)
	if !found {
		return "", fmt.Errorf("spade_url not in settings script")
	}
	url, _, found := strings.Cut(after, `"`)
	if !found {
		return "", fmt.Errorf("unterminated spade_url")
	}
	return url, nil
}

// MinuteWatched is the telemetry heartbeat payload.
type MinuteWatched struct {
	ChannelID   string  `json:"channel_id"`
	BroadcastID *string `json:"broadcast_id"`
	Live        bool    `json:"live"`
	Channel     string  `json:"channel"`
	Player      string  `json:"player"`
	PlayerState string  `json:"player_state"`
	UserID      int64   `json:"user_id"`
	Login       string  `json:"login"`
}

// SendMinuteWatched posts one heartbeat for a channel to the spade URL. The
// payload is a single-element JSON array, base64 URL-safe encoded.
func (c *SpadeClient) SendMinuteWatched(ctx context.Context, spadeURL string, watched MinuteWatched) error {
	watched.Player = "site"
	watched.PlayerState = "Playing"
	body, err := json.Marshal([]struct {
		Event      string        `json:"event"`
		Properties MinuteWatched `json:"properties"`
	}{{Event: "minute-watched", Properties: watched}})
	if err != nil {
		return fmt.Errorf("encode minute-watched: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spadeURL, strings.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", ClientID)
	req.Header.Set("User-Agent", chromeUserAgent)
	req.Header.Set("X-Device-Id", DeviceID)
	req.Header.Set("Authorization", "OAuth "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send minute-watched: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send minute-watched: unexpected status %d", resp.StatusCode)
	}
	return nil
}

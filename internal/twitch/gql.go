// Package twitch talks to the platform's GraphQL endpoint and telemetry
// surfaces. Only the handful of persisted operations the agent needs are
// implemented.
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Graze/Graze/internal/model"
)

const (
	// GQLEndpoint is the platform's GraphQL URL.
	GQLEndpoint = "https://gql.twitch.tv/gql"

	// ClientID and DeviceID identify the agent as the platform's own web player.
	ClientID  = "ue6666qo983tsx6so1t0vnawi233wa"
	DeviceID  = "COF4t3ZVYpc87xfn8Jplkv5UQk8KVXvh"
	UserAgent = "Mozilla/5.0 (Linux; Android 7.1; Smart Box C1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
)

// Persisted query hashes, fixed per operation.
const (
	hashStreamMetadata                 = "676ee2f834ede42eb4514cdb432b3134fefc12590080c9a2c9bb44a2a4a63266"
	hashMakePrediction                 = "b44682ecc88358817009f20e69d75081b1e58825bb40aa53d5dbadcc17c881d8"
	hashChannelPointsContext           = "1530a003a7d374b0380b79db0be0534f30ff46e61cffa2bc0e2468a909fbc024"
	hashClaimCommunityPoints           = "46aaeebe02c99afdf4fc97c7c0cba964124bf6b0af229395f1f6d1feed05b3d0"
	hashChannelPointsPredictionContext = "beb846598256b75bd7c1fe54a80431335996153e358ca9c7837ce7bb83d7d383"
	hashJoinRaid                       = "c6a332a86d1087fbbb1a8623aa01bd1313d2386e7c63be60fdb2d1901f01a4ae"
	hashCoreActionsCurrentUser         = "6b5b63a013cf66a995d61f71a508ab5c8e4473350c5d4136f846ba65e8101e95"
)

type gqlRequest struct {
	OperationName string        `json:"operationName"`
	Variables     any           `json:"variables"`
	Extensions    gqlExtensions `json:"extensions"`
}

type gqlExtensions struct {
	PersistedQuery gqlPersistedQuery `json:"persistedQuery"`
}

type gqlPersistedQuery struct {
	Version    int    `json:"version"`
	Sha256Hash string `json:"sha256Hash"`
}

func newGQLRequest(operation, hash string, variables any) gqlRequest {
	return gqlRequest{
		OperationName: operation,
		Variables:     variables,
		Extensions: gqlExtensions{
			PersistedQuery: gqlPersistedQuery{Version: 1, Sha256Hash: hash},
		},
	}
}

// GQLOptions configures a GQLClient.
type GQLOptions struct {
	URL       string
	Token     string
	Simulate  bool
	RateLimit rate.Limit // requests per second, 0 means no pacing
	Logger    zerolog.Logger
}

// GQLClient issues persisted GraphQL operations with the agent's identity
// headers. All calls are paced through a shared token bucket.
type GQLClient struct {
	url      string
	token    string
	simulate bool
	http     *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// NewGQLClient builds a client. The zero URL falls back to the production
// endpoint.
func NewGQLClient(opts GQLOptions) *GQLClient {
	if opts.URL == "" {
		opts.URL = GQLEndpoint
	}
	limit := opts.RateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	return &GQLClient{
		url:      opts.URL,
		token:    opts.Token,
		simulate: opts.Simulate,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		log:      opts.Logger.With().Str("component", "gql").Logger(),
	}
}

func (c *GQLClient) post(ctx context.Context, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", ClientID)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Device-Id", DeviceID)
	req.Header.Set("Authorization", "OAuth "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gql request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		return fmt.Errorf("gql request: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gql response: %w", err)
	}
	return nil
}

// ChannelInfo is the liveness snapshot for one configured channel.
type ChannelInfo struct {
	ID          int64
	Login       string
	Live        bool
	BroadcastID *string
}

type channelLoginVars struct {
	ChannelLogin string `json:"channelLogin"`
}

// StreamerMetadata resolves channel ids and liveness for the given logins.
// Entries are nil for logins the platform does not know.
func (c *GQLClient) StreamerMetadata(ctx context.Context, logins []string) ([]*ChannelInfo, error) {
	reqs := make([]gqlRequest, len(logins))
	for i, login := range logins {
		reqs[i] = newGQLRequest("StreamMetadata", hashStreamMetadata, channelLoginVars{ChannelLogin: login})
	}
	var res []struct {
		Data struct {
			User *struct {
				ID     string `json:"id"`
				Stream *struct {
					ID string `json:"id"`
				} `json:"stream"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.post(ctx, reqs, &res); err != nil {
		return nil, fmt.Errorf("stream metadata: %w", err)
	}
	if len(res) != len(logins) {
		return nil, fmt.Errorf("stream metadata: got %d results for %d logins", len(res), len(logins))
	}
	out := make([]*ChannelInfo, len(logins))
	for i, item := range res {
		if item.Data.User == nil {
			continue
		}
		id, err := strconv.ParseInt(item.Data.User.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stream metadata: bad channel id %q: %w", item.Data.User.ID, err)
		}
		info := &ChannelInfo{ID: id, Login: logins[i], Live: item.Data.User.Stream != nil}
		if item.Data.User.Stream != nil {
			bid := item.Data.User.Stream.ID
			info.BroadcastID = &bid
		}
		out[i] = info
	}
	return out, nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func transactionID() string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}

// MakePrediction places a bet. In simulate mode it returns success without
// touching the network.
func (c *GQLClient) MakePrediction(ctx context.Context, points int64, eventID, outcomeID string) error {
	if c.simulate {
		c.log.Info().
			Str("event_id", eventID).
			Str("outcome_id", outcomeID).
			Int64("points", points).
			Msg("simulated bet")
		return nil
	}
	req := newGQLRequest("MakePrediction", hashMakePrediction, map[string]any{
		"input": map[string]any{
			"eventID":       eventID,
			"outcomeID":     outcomeID,
			"points":        points,
			"transactionID": transactionID(),
		},
	})
	var res struct {
		Data struct {
			MakePrediction struct {
				Error *struct {
					Code string `json:"code"`
				} `json:"error"`
			} `json:"makePrediction"`
		} `json:"data"`
	}
	if err := c.post(ctx, req, &res); err != nil {
		return fmt.Errorf("make prediction: %w", err)
	}
	if res.Data.MakePrediction.Error != nil {
		return fmt.Errorf("make prediction rejected: %s", res.Data.MakePrediction.Error.Code)
	}
	return nil
}

// PointsBalance is a channel's balance plus an optional pending bonus claim.
type PointsBalance struct {
	Balance int64
	ClaimID string
}

type communityPointsResult struct {
	Data struct {
		Community struct {
			Channel struct {
				ID   string `json:"id"`
				Self struct {
					CommunityPoints struct {
						Balance        int64 `json:"balance"`
						AvailableClaim *struct {
							ID string `json:"id"`
						} `json:"availableClaim"`
					} `json:"communityPoints"`
				} `json:"self"`
			} `json:"channel"`
		} `json:"community"`
	} `json:"data"`
}

// ChannelPoints fetches balances and available claims for the given logins
// in one batched request. Results are positional.
func (c *GQLClient) ChannelPoints(ctx context.Context, logins []string) ([]PointsBalance, error) {
	reqs := make([]gqlRequest, len(logins))
	for i, login := range logins {
		reqs[i] = newGQLRequest("ChannelPointsContext", hashChannelPointsContext, channelLoginVars{ChannelLogin: login})
	}
	var res []communityPointsResult
	if err := c.post(ctx, reqs, &res); err != nil {
		return nil, fmt.Errorf("channel points: %w", err)
	}
	if len(res) != len(logins) {
		return nil, fmt.Errorf("channel points: got %d results for %d logins", len(res), len(logins))
	}
	out := make([]PointsBalance, len(res))
	for i, item := range res {
		points := item.Data.Community.Channel.Self.CommunityPoints
		out[i] = PointsBalance{Balance: points.Balance}
		if points.AvailableClaim != nil {
			out[i].ClaimID = points.AvailableClaim.ID
		}
	}
	return out, nil
}

// ClaimPoints claims a bonus and returns the post-claim balance.
func (c *GQLClient) ClaimPoints(ctx context.Context, channelID, claimID string) (int64, error) {
	req := newGQLRequest("ClaimCommunityPoints", hashClaimCommunityPoints, map[string]any{
		"input": map[string]string{
			"claimID":   claimID,
			"channelID": channelID,
		},
	})
	var res struct {
		Data struct {
			ClaimCommunityPoints struct {
				CurrentPoints int64 `json:"currentPoints"`
			} `json:"claimCommunityPoints"`
		} `json:"data"`
	}
	if err := c.post(ctx, req, &res); err != nil {
		return 0, fmt.Errorf("claim points: %w", err)
	}
	return res.Data.ClaimCommunityPoints.CurrentPoints, nil
}

// CurrentUser returns the authenticated user's id and login.
func (c *GQLClient) CurrentUser(ctx context.Context) (id, login string, err error) {
	req := newGQLRequest("CoreActionsCurrentUser", hashCoreActionsCurrentUser, struct{}{})
	var res struct {
		Data struct {
			CurrentUser *struct {
				ID    string `json:"id"`
				Login string `json:"login"`
			} `json:"currentUser"`
		} `json:"data"`
	}
	if err := c.post(ctx, req, &res); err != nil {
		return "", "", fmt.Errorf("current user: %w", err)
	}
	if res.Data.CurrentUser == nil {
		return "", "", fmt.Errorf("current user: token is not valid")
	}
	return res.Data.CurrentUser.ID, res.Data.CurrentUser.Login, nil
}

// TrackedEvent pairs an active prediction event with whether the user has
// already placed a bet on it.
type TrackedEvent struct {
	Event  model.Event
	Placed bool
}

// gqlEvent is the camelCase shape prediction events take on the GraphQL
// surface, as opposed to the snake_case pub/sub shape.
type gqlEvent struct {
	ID                      string     `json:"id"`
	Title                   string     `json:"title"`
	CreatedAt               time.Time  `json:"createdAt"`
	PredictionWindowSeconds int64      `json:"predictionWindowSeconds"`
	Status                  string     `json:"status"`
	LockedAt                *time.Time `json:"lockedAt"`
	EndedAt                 *time.Time `json:"endedAt"`
	WinningOutcomeID        *string    `json:"winningOutcomeId"`
	Outcomes                []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		TotalPoints int64  `json:"totalPoints"`
		TotalUsers  int64  `json:"totalUsers"`
	} `json:"outcomes"`
}

func (e gqlEvent) toModel(channelID string) model.Event {
	out := model.Event{
		ID:                      e.ID,
		ChannelID:               channelID,
		CreatedAt:               e.CreatedAt,
		Title:                   e.Title,
		PredictionWindowSeconds: e.PredictionWindowSeconds,
		Status:                  e.Status,
		LockedAt:                e.LockedAt,
		EndedAt:                 e.EndedAt,
		WinningOutcomeID:        e.WinningOutcomeID,
	}
	for _, o := range e.Outcomes {
		out.Outcomes = append(out.Outcomes, model.Outcome(o))
	}
	return out
}

// ActivePredictions fetches each login's active prediction events, with the
// placed flag derived from the user's recent predictions.
func (c *GQLClient) ActivePredictions(ctx context.Context, logins []string) ([][]TrackedEvent, error) {
	reqs := make([]gqlRequest, len(logins))
	for i, login := range logins {
		reqs[i] = newGQLRequest("ChannelPointsPredictionContext", hashChannelPointsPredictionContext, struct {
			Count        int    `json:"count"`
			ChannelLogin string `json:"channelLogin"`
		}{Count: 1, ChannelLogin: login})
	}
	var res []struct {
		Data struct {
			Community struct {
				Channel struct {
					ID                     string     `json:"id"`
					ActivePredictionEvents []gqlEvent `json:"activePredictionEvents"`
					Self                   *struct {
						RecentPredictions []struct {
							Event struct {
								ID string `json:"id"`
							} `json:"event"`
						} `json:"recentPredictions"`
					} `json:"self"`
				} `json:"channel"`
			} `json:"community"`
		} `json:"data"`
	}
	if err := c.post(ctx, reqs, &res); err != nil {
		return nil, fmt.Errorf("active predictions: %w", err)
	}
	out := make([][]TrackedEvent, len(res))
	for i, item := range res {
		channel := item.Data.Community.Channel
		recent := map[string]bool{}
		if channel.Self != nil {
			for _, r := range channel.Self.RecentPredictions {
				recent[r.Event.ID] = true
			}
		}
		for _, ev := range channel.ActivePredictionEvents {
			out[i] = append(out[i], TrackedEvent{
				Event:  ev.toModel(channel.ID),
				Placed: recent[ev.ID],
			})
		}
	}
	return out, nil
}

// JoinRaid joins an outgoing raid.
func (c *GQLClient) JoinRaid(ctx context.Context, raidID string) error {
	req := newGQLRequest("JoinRaid", hashJoinRaid, map[string]any{
		"input": map[string]string{"raidID": raidID},
	})
	var res json.RawMessage
	if err := c.post(ctx, req, &res); err != nil {
		return fmt.Errorf("join raid: %w", err)
	}
	return nil
}

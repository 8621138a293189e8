// Package claim refreshes point balances for live broadcasters and claims
// available community-points bonuses.
package claim

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/scanloop"
	"github.com/Graze/Graze/internal/twitch"
)

const defaultInterval = time.Minute

// Platform is the points RPC surface the claimer calls.
type Platform interface {
	ChannelPoints(ctx context.Context, logins []string) ([]twitch.PointsBalance, error)
	ClaimPoints(ctx context.Context, channelID, claimID string) (int64, error)
}

// Recorder is the analytics submission side.
type Recorder interface {
	Submit(analytics.WorkUnit)
}

// Claimer runs the bonus cycle.
type Claimer struct {
	reg      *registry.Registry
	platform Platform
	store    Recorder
	interval time.Duration
	log      zerolog.Logger
}

// Options configures a Claimer.
type Options struct {
	Registry *registry.Registry
	Platform Platform
	Store    Recorder
	Interval time.Duration // defaults to 60s
	Logger   zerolog.Logger
}

// New builds a Claimer.
func New(opts Options) *Claimer {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &Claimer{
		reg:      opts.Registry,
		platform: opts.Platform,
		store:    opts.Store,
		interval: opts.Interval,
		log:      opts.Logger.With().Str("component", "claim").Logger(),
	}
}

// Run cycles until stopCh closes.
func (c *Claimer) Run(stopCh <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()
	scanloop.Run(stopCh, c.interval, func() { c.Cycle(ctx) })
}

// Cycle refreshes every live broadcaster's balance in one batched RPC,
// claims pending bonuses, and records changed balances.
func (c *Claimer) Cycle(ctx context.Context) {
	live := c.reg.Live()
	if len(live) == 0 {
		return
	}
	logins := make([]string, len(live))
	for i, s := range live {
		logins[i] = s.Name
	}

	balances, err := c.platform.ChannelPoints(ctx, logins)
	if err != nil {
		c.log.Error().Err(err).Msg("balance refresh failed")
		return
	}
	if len(balances) != len(live) {
		c.log.Error().Int("got", len(balances)).Int("want", len(live)).Msg("balance batch size mismatch")
		return
	}

	for i, snap := range live {
		balance := balances[i].Balance
		info := analytics.Watching()

		if claimID := balances[i].ClaimID; claimID != "" {
			claimed, err := c.platform.ClaimPoints(ctx, strconv.FormatInt(snap.ID, 10), claimID)
			if err != nil {
				c.log.Error().Err(err).Str("streamer", snap.Name).Msg("bonus claim failed")
			} else {
				balance = claimed
				info = analytics.Claimed()
				c.log.Info().Str("streamer", snap.Name).Int64("balance", balance).Msg("bonus claimed")
			}
		}

		c.reg.UpdatePoints(snap.ID, balance)
		c.store.Submit(analytics.InsertPointsIfUpdated{
			ChannelID: snap.ID,
			Value:     balance,
			Info:      info,
		})
	}
}

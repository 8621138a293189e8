// Package poller watches broadcaster liveness through the platform's
// metadata RPC and publishes transitions on a shared event channel.
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/scanloop"
	"github.com/Graze/Graze/internal/twitch"
)

// Event is a poller emission: Live or SpadeUpdate.
type Event any

// Live reports a liveness transition. BroadcastID is nil when the
// broadcaster went offline.
type Live struct {
	ChannelID   int64
	BroadcastID *string
}

// SpadeUpdate carries a freshly resolved telemetry endpoint.
type SpadeUpdate struct {
	URL string
}

// spadeEvery is how many successful cycles with a live broadcaster pass
// between telemetry endpoint refreshes.
const spadeEvery = 10

// MetadataFetcher is the batched liveness RPC.
type MetadataFetcher interface {
	StreamerMetadata(ctx context.Context, logins []string) ([]*twitch.ChannelInfo, error)
}

// SpadeResolver re-resolves the telemetry endpoint from a live channel's
// static config.
type SpadeResolver interface {
	ResolveURL(ctx context.Context, channel string) (string, error)
}

// Roster supplies the current broadcaster set each cycle, so control-plane
// adds and removes take effect without a restart.
type Roster interface {
	All() []registry.Snapshot
}

// LivePoller drives the poll cycle.
type LivePoller struct {
	gql      MetadataFetcher
	spade    SpadeResolver
	roster   Roster
	events   chan<- Event
	interval time.Duration
	log      zerolog.Logger

	spadeCounter int
}

// Options configures a LivePoller.
type Options struct {
	Metadata MetadataFetcher
	Spade    SpadeResolver
	Roster   Roster
	Events   chan<- Event
	Interval time.Duration // defaults to 60s
	Logger   zerolog.Logger
}

// New builds a LivePoller.
func New(opts Options) *LivePoller {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &LivePoller{
		gql:      opts.Metadata,
		spade:    opts.Spade,
		roster:   opts.Roster,
		events:   opts.Events,
		interval: opts.Interval,
		log:      opts.Logger.With().Str("component", "poller").Logger(),
	}
}

// Run polls immediately, then on the configured interval until stopCh is
// closed. A failed cycle logs and waits for the next tick; it never aborts.
func (p *LivePoller) Run(stopCh <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	p.Cycle(ctx, stopCh)
	scanloop.Run(stopCh, p.interval, func() { p.Cycle(ctx, stopCh) })
}

// Cycle performs one poll. Exposed for the startup bootstrap, which needs
// liveness settled before the first watch tick.
func (p *LivePoller) Cycle(ctx context.Context, stopCh <-chan struct{}) {
	snaps := p.roster.All()
	if len(snaps) == 0 {
		return
	}
	logins := make([]string, len(snaps))
	for i, s := range snaps {
		logins[i] = s.Name
	}

	infos, err := p.gql.StreamerMetadata(ctx, logins)
	if err != nil {
		p.log.Error().Err(err).Msg("liveness poll failed")
		return
	}

	liveChannel := ""
	for i, info := range infos {
		if info == nil {
			p.log.Warn().Str("streamer", logins[i]).Msg("streamer unknown to the platform")
			continue
		}
		if info.Live && liveChannel == "" {
			liveChannel = info.Login
		}
		if changed(snaps[i], info) {
			ev := Live{ChannelID: info.ID, BroadcastID: info.BroadcastID}
			if !p.send(stopCh, ev) {
				return
			}
			p.log.Info().Str("streamer", logins[i]).Bool("live", info.Live).Msg("liveness changed")
		}
	}

	if liveChannel != "" {
		if p.spadeCounter%spadeEvery == 0 {
			p.refreshSpade(ctx, stopCh, liveChannel)
		}
		p.spadeCounter++
	}
}

func changed(snap registry.Snapshot, info *twitch.ChannelInfo) bool {
	if snap.Live != info.Live {
		return true
	}
	// a new broadcast id while staying live is a fresh stream
	switch {
	case snap.BroadcastID == nil && info.BroadcastID == nil:
		return false
	case snap.BroadcastID == nil || info.BroadcastID == nil:
		return true
	}
	return *snap.BroadcastID != *info.BroadcastID
}

func (p *LivePoller) refreshSpade(ctx context.Context, stopCh <-chan struct{}, channel string) {
	url, err := p.spade.ResolveURL(ctx, channel)
	if err != nil {
		p.log.Error().Err(err).Msg("spade resolution failed")
		return
	}
	p.send(stopCh, SpadeUpdate{URL: url})
}

func (p *LivePoller) send(stopCh <-chan struct{}, ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-stopCh:
		return false
	}
}

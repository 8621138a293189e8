// Package router turns liveness transitions into pub/sub subscription
// changes and keeps the registry's live state current.
package router

import (
	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/poller"
	"github.com/Graze/Graze/internal/pubsub"
	"github.com/Graze/Graze/internal/registry"
)

// TopicClient is the subscription side of the socket pool.
type TopicClient interface {
	Listen(pubsub.Topic)
	Unlisten(pubsub.Topic)
}

// Router consumes poller events. It is also the control plane's entry point
// for attaching and detaching broadcasters at runtime.
type Router struct {
	pool TopicClient
	reg  *registry.Registry
	log  zerolog.Logger
}

// New builds a Router.
func New(pool TopicClient, reg *registry.Registry, log zerolog.Logger) *Router {
	return &Router{
		pool: pool,
		reg:  reg,
		log:  log.With().Str("component", "router").Logger(),
	}
}

// Run consumes events until stopCh closes.
func (r *Router) Run(events <-chan poller.Event, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case ev := <-events:
			switch ev := ev.(type) {
			case poller.Live:
				r.ApplyLive(ev)
			case poller.SpadeUpdate:
				r.reg.SetSpadeURL(ev.URL)
				r.log.Info().Str("url", ev.URL).Msg("spade endpoint updated")
			}
		}
	}
}

// liveTopics is the per-broadcaster topic set toggled on liveness
// transitions, in listen order.
func liveTopics(channelID int64) []pubsub.Topic {
	return []pubsub.Topic{
		{Kind: pubsub.PredictionsChannelV1, ChannelID: channelID},
		{Kind: pubsub.CommunityPointsUserV1, ChannelID: channelID},
		{Kind: pubsub.RaidTopic, ChannelID: channelID},
	}
}

// ApplyLive applies one liveness transition. The control plane calls it
// directly when a freshly mined broadcaster is already live.
func (r *Router) ApplyLive(ev poller.Live) {
	if !r.reg.SetLive(ev.ChannelID, ev.BroadcastID) {
		r.log.Warn().Int64("channel", ev.ChannelID).Msg("liveness event for unregistered channel")
		return
	}
	if ev.BroadcastID != nil {
		for _, t := range liveTopics(ev.ChannelID) {
			r.pool.Listen(t)
		}
	} else {
		for _, t := range liveTopics(ev.ChannelID) {
			r.pool.Unlisten(t)
		}
	}
}

// Attach subscribes the broadcaster's playback topic. Called at startup for
// every configured broadcaster and when one is added at runtime.
func (r *Router) Attach(channelID int64) {
	r.pool.Listen(pubsub.Topic{Kind: pubsub.VideoPlaybackByID, ChannelID: channelID})
}

// Detach unsubscribes everything for the broadcaster. Unlistening the
// playback topic makes the pool emit a synthetic stream-down, so consumers
// deterministically tear down live state.
func (r *Router) Detach(channelID int64) {
	for _, t := range liveTopics(channelID) {
		r.pool.Unlisten(t)
	}
	r.pool.Unlisten(pubsub.Topic{Kind: pubsub.VideoPlaybackByID, ChannelID: channelID})
}

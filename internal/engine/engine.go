// Package engine consumes pub/sub payloads and drives the betting logic:
// prediction lifecycle tracking, filter and strategy evaluation, bet
// placement, raid following, and bonus bookkeeping.
package engine

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/maypok86/otter"
	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/model"
	"github.com/Graze/Graze/internal/pubsub"
	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/twitch"
)

// balanceTTL bounds how stale a cached point balance may be when sizing a
// bet.
const balanceTTL = 30 * time.Second

// Platform is the subset of the GraphQL client the engine calls.
type Platform interface {
	MakePrediction(ctx context.Context, points int64, eventID, outcomeID string) error
	ChannelPoints(ctx context.Context, logins []string) ([]twitch.PointsBalance, error)
	JoinRaid(ctx context.Context, raidID string) error
}

// Recorder is the analytics write/read surface the engine uses.
type Recorder interface {
	Submit(analytics.WorkUnit)
	Flush()
	LastPredictionID(channelID int64, eventID string) (int64, error)
}

// Engine is the payload consumer. One Run goroutine owns all its state.
type Engine struct {
	reg      *registry.Registry
	store    Recorder
	platform Platform
	log      zerolog.Logger

	balances  otter.Cache[int64, int64]
	randFloat func() float64
	streaks   chan<- int64
}

// Options configures an Engine.
type Options struct {
	Registry *registry.Registry
	Store    Recorder
	Platform Platform
	Logger   zerolog.Logger
	// Streaks receives channel ids on stream-up for the watch-streak
	// tracker. Sends never block; nil disables the feed.
	Streaks chan<- int64
	// RandFloat overrides the Bernoulli source in tests.
	RandFloat func() float64
}

// New builds an Engine.
func New(opts Options) *Engine {
	balances, err := otter.MustBuilder[int64, int64](1024).
		WithTTL(balanceTTL).
		Build()
	if err != nil {
		panic(err)
	}
	if opts.RandFloat == nil {
		opts.RandFloat = rand.Float64
	}
	return &Engine{
		reg:       opts.Registry,
		store:     opts.Store,
		platform:  opts.Platform,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
		balances:  balances,
		randFloat: opts.RandFloat,
		streaks:   opts.Streaks,
	}
}

// Run consumes payloads until stopCh closes.
func (e *Engine) Run(payloads <-chan pubsub.Payload, stopCh <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	for {
		select {
		case <-stopCh:
			return
		case p := <-payloads:
			e.Handle(ctx, p)
		}
	}
}

// Handle processes one payload. Exported for tests.
func (e *Engine) Handle(ctx context.Context, p pubsub.Payload) {
	channelID := p.Topic.ChannelID
	switch reply := p.Reply.(type) {
	case pubsub.PredictionUpdate:
		e.handlePrediction(ctx, channelID, reply.Event)
	case pubsub.StreamUp:
		e.handleStreamUp(channelID)
	case pubsub.StreamDown:
		e.reg.SetLive(channelID, nil)
	case pubsub.ClaimClaimed:
		e.handleClaimClaimed(reply)
	case pubsub.RaidUpdate:
		e.handleRaid(ctx, channelID, reply)
	}
}

func (e *Engine) handleStreamUp(channelID int64) {
	// liveness itself is settled by the poller; stream-up only feeds the
	// watch streak
	if e.streaks == nil {
		return
	}
	select {
	case e.streaks <- channelID:
	default:
	}
}

// handleClaimClaimed applies a points push for one of our broadcasters. The
// payload arrives on our own user's topic; the affected channel is inside the
// claim, and the gain carries the post-claim balance.
func (e *Engine) handleClaimClaimed(claim pubsub.ClaimClaimed) {
	userID, _ := e.reg.User()
	if claim.Claim.UserID != strconv.FormatInt(userID, 10) {
		return
	}
	channelID, err := strconv.ParseInt(claim.Claim.ChannelID, 10, 64)
	if err != nil {
		return
	}
	if _, _, ok := e.reg.Points(channelID); !ok {
		return
	}
	balance := claim.Claim.PointGain.TotalPoints
	e.reg.UpdatePoints(channelID, balance)
	e.balances.Set(channelID, balance)
	e.store.Submit(analytics.InsertPointsIfUpdated{
		ChannelID: channelID,
		Value:     balance,
		Info:      analytics.Claimed(),
	})
}

func (e *Engine) handleRaid(ctx context.Context, channelID int64, raid pubsub.RaidUpdate) {
	handle, ok := e.reg.ConfigFor(channelID)
	if !ok || !handle.Snapshot().FollowRaid {
		return
	}
	if err := e.platform.JoinRaid(ctx, raid.ID); err != nil {
		e.log.Error().Err(err).Str("raid", raid.ID).Msg("join raid failed")
		return
	}
	e.log.Info().Str("target", raid.TargetLogin).Msg("joined raid")
}

func (e *Engine) handlePrediction(ctx context.Context, channelID int64, ev model.Event) {
	switch {
	case ev.LockedAt != nil && ev.EndedAt == nil:
		// the platform replays lock events; nothing to do
		return
	case ev.EndedAt == nil:
		existed := e.reg.UpsertPrediction(channelID, ev)
		e.store.Submit(analytics.UpsertPrediction{ChannelID: channelID, Event: ev})
		if !existed {
			e.log.Info().Str("event", ev.ID).Str("title", ev.Title).Msg("prediction opened")
		}
		e.tryBet(ctx, channelID, ev.ID)
	default:
		e.closePrediction(ctx, channelID, ev)
	}
}

func (e *Engine) closePrediction(ctx context.Context, channelID int64, ev model.Event) {
	e.store.Submit(analytics.UpsertPrediction{ChannelID: channelID, Event: ev})
	e.store.Submit(analytics.EndPrediction{
		ChannelID:        channelID,
		EventID:          ev.ID,
		WinningOutcomeID: ev.WinningOutcomeID,
		Outcomes:         ev.Outcomes,
		ClosedAt:         *ev.EndedAt,
	})
	e.reg.RemovePrediction(channelID, ev.ID)
	e.balances.Delete(channelID)

	// record the post-event balance against the settled row
	balance, err := e.refreshBalance(ctx, channelID)
	if err != nil {
		e.log.Error().Err(err).Int64("channel", channelID).Msg("post-event balance refresh failed")
		return
	}
	e.store.Flush()
	rowID, err := e.store.LastPredictionID(channelID, ev.ID)
	if err != nil {
		e.log.Error().Err(err).Str("event", ev.ID).Msg("settled prediction row missing")
		return
	}
	e.store.Submit(analytics.InsertPoints{
		ChannelID: channelID,
		Value:     balance,
		Info:      analytics.Prediction(ev.ID, rowID),
	})
	e.log.Info().Str("event", ev.ID).Int64("balance", balance).Msg("prediction settled")
}

func (e *Engine) tryBet(ctx context.Context, channelID int64, eventID string) {
	tracked, ok := e.reg.Prediction(channelID, eventID)
	if !ok || tracked.Placed {
		return
	}
	ev := tracked.Event

	handle, ok := e.reg.ConfigFor(channelID)
	if !ok {
		return
	}
	cfg := handle.Snapshot()

	balance, ok := e.balances.Get(channelID)
	if !ok {
		var err error
		balance, err = e.refreshBalance(ctx, channelID)
		if err != nil {
			e.log.Error().Err(err).Int64("channel", channelID).Msg("balance refresh failed")
			return
		}
	}

	now := time.Now()
	for _, f := range cfg.Prediction.Filters {
		if !f.Matches(&ev, now) {
			return
		}
	}

	bet, ok := cfg.Prediction.Strategy.Evaluate(ev.Outcomes, balance, e.randFloat)
	if !ok {
		return
	}

	if err := e.platform.MakePrediction(ctx, bet.Points, eventID, bet.OutcomeID); err != nil {
		e.log.Error().Err(err).Str("event", eventID).Msg("bet rejected")
		return
	}
	e.reg.MarkPlaced(channelID, eventID)
	e.log.Info().
		Str("event", eventID).
		Str("outcome", bet.OutcomeID).
		Int64("points", bet.Points).
		Msg("bet placed")

	e.balances.Delete(channelID)
	newBalance, err := e.refreshBalance(ctx, channelID)
	if err != nil {
		e.log.Error().Err(err).Int64("channel", channelID).Msg("post-bet balance refresh failed")
	} else {
		e.store.Flush()
		if rowID, err := e.store.LastPredictionID(channelID, eventID); err == nil {
			e.store.Submit(analytics.InsertPoints{
				ChannelID: channelID,
				Value:     newBalance,
				Info:      analytics.Prediction(eventID, rowID),
			})
		} else {
			e.log.Error().Err(err).Str("event", eventID).Msg("prediction row missing after bet")
		}
	}
	e.store.Submit(analytics.PlaceBet{
		ChannelID: channelID,
		EventID:   eventID,
		OutcomeID: bet.OutcomeID,
		Points:    bet.Points,
	})
}

// refreshBalance fetches the channel's balance and updates both caches.
func (e *Engine) refreshBalance(ctx context.Context, channelID int64) (int64, error) {
	name, ok := e.reg.Name(channelID)
	if !ok {
		return 0, errUnknownChannel(channelID)
	}
	balances, err := e.platform.ChannelPoints(ctx, []string{name})
	if err != nil {
		return 0, err
	}
	if len(balances) != 1 {
		return 0, errUnknownChannel(channelID)
	}
	balance := balances[0].Balance
	e.reg.UpdatePoints(channelID, balance)
	e.balances.Set(channelID, balance)
	return balance, nil
}

type errUnknownChannel int64

func (e errUnknownChannel) Error() string {
	return "channel " + strconv.FormatInt(int64(e), 10) + " not registered"
}

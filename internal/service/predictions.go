package service

import (
	"context"
	"time"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/model"
	"github.com/Graze/Graze/internal/strategy"
)

// LivePredictionView is one tracked prediction event with its bet state.
type LivePredictionView struct {
	Streamer  string      `json:"streamer"`
	ChannelID int64       `json:"channel_id"`
	Placed    bool        `json:"placed"`
	Event     model.Event `json:"event"`
}

// LivePredictions lists every tracked prediction event across broadcasters.
func (c *ControlPlane) LivePredictions() []LivePredictionView {
	out := []LivePredictionView{}
	for _, snap := range c.reg.All() {
		for _, p := range snap.Predictions {
			out = append(out, LivePredictionView{
				Streamer:  snap.Name,
				ChannelID: snap.ID,
				Placed:    p.Placed,
				Event:     p.Event,
			})
		}
	}
	return out
}

// BetRequest is a manual bet. OutcomeID and Points select the explicit mode;
// when both are absent the streamer's configured strategy decides.
type BetRequest struct {
	EventID   string
	OutcomeID string
	Points    int64
}

// PlaceBet places a bet on a tracked open event. Returns the placed bet and
// whether it was explicit (true) or strategy-evaluated (false).
func (c *ControlPlane) PlaceBet(ctx context.Context, name string, req BetRequest) (strategy.Bet, bool, error) {
	snap, ok := c.reg.Get(name)
	if !ok {
		return strategy.Bet{}, false, notFound("streamer %q is not mined", name)
	}
	tracked, ok := snap.Predictions[req.EventID]
	if !ok {
		return strategy.Bet{}, false, notFound("streamer %q has no tracked event %q", name, req.EventID)
	}
	ev := tracked.Event
	if ev.LockedAt != nil || ev.EndedAt != nil {
		return strategy.Bet{}, false, notFound("event %s is no longer open", ev.ID)
	}
	if tracked.Placed {
		return strategy.Bet{}, false, conflict("a bet is already placed on event %s", ev.ID)
	}
	// The registry forgets placed flags across restarts; the persisted row
	// is the second line of defense.
	if row, err := c.store.LivePrediction(snap.ID, ev.ID); err == nil && row != nil && row.PlacedBet.Placed() {
		return strategy.Bet{}, false, conflict("a bet is already placed on event %s", ev.ID)
	}

	explicit := req.OutcomeID != "" || req.Points != 0
	var bet strategy.Bet
	if explicit {
		if req.OutcomeID == "" || req.Points <= 0 {
			return strategy.Bet{}, false, invalidArgument("an explicit bet needs both outcome_id and positive points")
		}
		valid := false
		for _, o := range ev.Outcomes {
			if o.ID == req.OutcomeID {
				valid = true
				break
			}
		}
		if !valid {
			return strategy.Bet{}, false, invalidArgument("outcome %q is not part of event %s", req.OutcomeID, ev.ID)
		}
		bet = strategy.Bet{OutcomeID: req.OutcomeID, Points: req.Points}
	} else {
		balances, err := c.platform.ChannelPoints(ctx, []string{name})
		if err != nil || len(balances) != 1 {
			return strategy.Bet{}, false, unavailable("balance lookup failed: %v", err)
		}
		handle, ok := c.reg.ConfigFor(snap.ID)
		if !ok {
			return strategy.Bet{}, false, notFound("streamer %q is not mined", name)
		}
		bet, ok = handle.Snapshot().Prediction.Strategy.Evaluate(ev.Outcomes, balances[0].Balance, c.randFloat)
		if !ok {
			return strategy.Bet{}, false, invalidArgument("strategy produced no bet for event %s", ev.ID)
		}
	}

	if err := c.platform.MakePrediction(ctx, bet.Points, ev.ID, bet.OutcomeID); err != nil {
		return strategy.Bet{}, false, unavailable("bet rejected: %v", err)
	}
	if !c.reg.MarkPlaced(snap.ID, ev.ID) {
		// Raced with the automatic engine; the platform accepted only one.
		return strategy.Bet{}, explicit, conflict("a bet is already placed on event %s", ev.ID)
	}
	c.store.Submit(analytics.PlaceBet{
		ChannelID: snap.ID,
		EventID:   ev.ID,
		OutcomeID: bet.OutcomeID,
		Points:    bet.Points,
	})
	c.log.Info().
		Str("streamer", name).
		Str("event", ev.ID).
		Str("outcome", bet.OutcomeID).
		Int64("points", bet.Points).
		Bool("explicit", explicit).
		Msg("manual bet placed")
	return bet, explicit, nil
}

// Timeline validates channel ids and queries the analytics store. An empty
// id list means every mined broadcaster.
func (c *ControlPlane) Timeline(from, to time.Time, channels []int64) ([]analytics.TimelineEntry, error) {
	for _, id := range channels {
		if !c.reg.Has(id) {
			return nil, notFound("channel %d is not mined", id)
		}
	}
	if len(channels) == 0 {
		for _, snap := range c.reg.All() {
			channels = append(channels, snap.ID)
		}
	}
	c.store.Flush()
	entries, err := c.store.Timeline(from, to, channels)
	if err != nil {
		return nil, unavailable("timeline query failed: %v", err)
	}
	if entries == nil {
		entries = []analytics.TimelineEntry{}
	}
	return entries, nil
}

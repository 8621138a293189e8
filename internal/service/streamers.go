package service

import (
	"context"
	"slices"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/poller"
	"github.com/Graze/Graze/internal/registry"
)

// State is the whole-agent view returned by the root endpoint.
type State struct {
	UserID    int64               `json:"user_id"`
	UserLogin string              `json:"user_login"`
	SpadeURL  string              `json:"spade_url,omitempty"`
	Simulate  bool                `json:"simulate"`
	Streamers []registry.Snapshot `json:"streamers"`
}

// State snapshots the whole agent.
func (c *ControlPlane) State() State {
	userID, login := c.reg.User()
	return State{
		UserID:    userID,
		UserLogin: login,
		SpadeURL:  c.reg.SpadeURL(),
		Simulate:  c.simulate,
		Streamers: c.reg.All(),
	}
}

// Streamer returns one broadcaster by name.
func (c *ControlPlane) Streamer(name string) (registry.Snapshot, error) {
	snap, ok := c.reg.Get(name)
	if !ok {
		return registry.Snapshot{}, notFound("streamer %q is not mined", name)
	}
	return snap, nil
}

// LiveStreamers returns the currently live broadcasters.
func (c *ControlPlane) LiveStreamers() []registry.Snapshot {
	return c.reg.Live()
}

// Mine starts mining a broadcaster. Nothing is mutated until the platform
// lookups succeed, so a failed mine leaves config and registry untouched.
func (c *ControlPlane) Mine(ctx context.Context, name string, ct config.ConfigType) (registry.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cfg.Streamers.Get(name); exists {
		return registry.Snapshot{}, conflict("streamer %q is already mined", name)
	}
	presetName, streamerCfg, err := c.resolve(ct)
	if err != nil {
		return registry.Snapshot{}, err
	}

	infos, err := c.platform.StreamerMetadata(ctx, []string{name})
	if err != nil {
		return registry.Snapshot{}, unavailable("metadata lookup failed: %v", err)
	}
	if len(infos) != 1 || infos[0] == nil {
		return registry.Snapshot{}, notFound("streamer %q does not exist", name)
	}
	info := infos[0]

	balances, err := c.platform.ChannelPoints(ctx, []string{name})
	if err != nil {
		return registry.Snapshot{}, unavailable("balance lookup failed: %v", err)
	}
	var balance int64
	if len(balances) == 1 {
		balance = balances[0].Balance
	}

	b := &registry.Broadcaster{
		ID:     info.ID,
		Name:   name,
		Points: balance,
		Config: registry.NewConfigHandle(presetName, streamerCfg),
	}
	if !c.reg.Add(b) {
		return registry.Snapshot{}, conflict("channel %d is already registered", info.ID)
	}

	c.cfg.Streamers.Set(name, ct)
	c.save()

	c.store.Submit(analytics.InsertStreamer{ChannelID: info.ID, Name: name})
	c.store.Submit(analytics.InsertPoints{ChannelID: info.ID, Value: balance, Info: analytics.FirstEntry()})

	c.router.Attach(info.ID)
	if info.Live {
		c.router.ApplyLive(poller.Live{ChannelID: info.ID, BroadcastID: info.BroadcastID})
	}

	c.log.Info().Str("streamer", name).Int64("channel", info.ID).Msg("mining started")
	snap, _ := c.reg.Get(name)
	return snap, nil
}

// Unmine stops mining a broadcaster and drops it from the config.
func (c *ControlPlane) Unmine(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cfg.Streamers.Get(name); !exists {
		return notFound("streamer %q is not mined", name)
	}
	c.cfg.Streamers.Delete(name)
	if i := slices.Index(c.cfg.WatchPriority, name); i >= 0 {
		c.cfg.WatchPriority = slices.Delete(c.cfg.WatchPriority, i, i+1)
	}
	c.save()

	if id, ok := c.reg.IDByName(name); ok {
		c.router.Detach(id)
		c.reg.Remove(name)
	}
	c.log.Info().Str("streamer", name).Msg("mining stopped")
	return nil
}

package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Graze/Graze/internal/analytics"
	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/poller"
	"github.com/Graze/Graze/internal/registry"
	"github.com/Graze/Graze/internal/twitch"
)

// Platform is the GraphQL surface the control plane needs.
type Platform interface {
	StreamerMetadata(ctx context.Context, logins []string) ([]*twitch.ChannelInfo, error)
	ChannelPoints(ctx context.Context, logins []string) ([]twitch.PointsBalance, error)
	MakePrediction(ctx context.Context, points int64, eventID, outcomeID string) error
}

// Subscriber is the router surface: topic bookkeeping for broadcasters.
type Subscriber interface {
	Attach(channelID int64)
	Detach(channelID int64)
	ApplyLive(ev poller.Live)
}

// Recorder is the analytics surface the control plane reads and writes.
type Recorder interface {
	Submit(u analytics.WorkUnit)
	Flush()
	LivePrediction(channelID int64, eventID string) (*analytics.PredictionRow, error)
	Timeline(from, to time.Time, channelIDs []int64) ([]analytics.TimelineEntry, error)
}

// ControlPlane owns the mutable config document. All mutations flow through
// its lock and are persisted back to the config file before returning.
type ControlPlane struct {
	mu        sync.Mutex
	cfg       *config.Config
	file      *config.File
	reg       *registry.Registry
	router    Subscriber
	store     Recorder
	platform  Platform
	simulate  bool
	randFloat func() float64
	log       zerolog.Logger
}

// Options wires a ControlPlane.
type Options struct {
	Config   *config.Config // already validated and normalized
	File     *config.File
	Registry *registry.Registry
	Router   Subscriber
	Store    Recorder
	Platform Platform
	Simulate bool
	// RandFloat supplies the Bernoulli trials for strategy-evaluated manual
	// bets. Defaults to rand.Float64.
	RandFloat func() float64
	Logger    zerolog.Logger
}

// New builds a ControlPlane.
func New(opts Options) *ControlPlane {
	randFloat := opts.RandFloat
	if randFloat == nil {
		randFloat = rand.Float64
	}
	return &ControlPlane{
		cfg:       opts.Config,
		file:      opts.File,
		reg:       opts.Registry,
		router:    opts.Router,
		store:     opts.Store,
		platform:  opts.Platform,
		simulate:  opts.Simulate,
		randFloat: randFloat,
		log:       opts.Logger.With().Str("component", "control").Logger(),
	}
}

func (c *ControlPlane) save() {
	if err := c.file.Save(c.cfg); err != nil {
		c.log.Error().Err(err).Msg("config save failed")
	}
}

// resolve maps a ConfigType to its effective config, validating and
// normalizing inline configs exactly once.
func (c *ControlPlane) resolve(ct config.ConfigType) (string, config.StreamerConfig, error) {
	switch {
	case ct.Preset != "":
		if c.cfg.Presets == nil {
			return "", config.StreamerConfig{}, invalidArgument("preset %q not found", ct.Preset)
		}
		preset, ok := c.cfg.Presets.Get(ct.Preset)
		if !ok {
			return "", config.StreamerConfig{}, invalidArgument("preset %q not found", ct.Preset)
		}
		return ct.Preset, preset, nil
	case ct.Specific != nil:
		if err := ct.Specific.Validate(); err != nil {
			return "", config.StreamerConfig{}, invalidArgument("invalid config: %v", err)
		}
		ct.Specific.Normalize()
		return "", *ct.Specific, nil
	}
	return "", config.StreamerConfig{}, invalidArgument("config must be exactly one of Preset or Specific")
}

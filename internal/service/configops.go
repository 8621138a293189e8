package service

import (
	"slices"

	"github.com/Graze/Graze/internal/config"
)

// NamedPreset pairs a preset with its name for list responses.
type NamedPreset struct {
	Name   string                `json:"name"`
	Config config.StreamerConfig `json:"config"`
}

// Presets returns every preset in file order.
func (c *ControlPlane) Presets() []NamedPreset {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Presets == nil {
		return []NamedPreset{}
	}
	out := make([]NamedPreset, 0, c.cfg.Presets.Len())
	for _, name := range c.cfg.Presets.Keys() {
		preset, _ := c.cfg.Presets.Get(name)
		out = append(out, NamedPreset{Name: name, Config: preset})
	}
	return out
}

// UpsertPreset creates or replaces a preset. Broadcasters bound to the
// preset pick up the new rules immediately through their shared handles.
func (c *ControlPlane) UpsertPreset(name string, preset config.StreamerConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		return invalidArgument("preset name must not be empty")
	}
	if _, clash := c.cfg.Streamers.Get(name); clash {
		return conflict("preset name %q collides with a configured streamer", name)
	}
	if err := preset.Validate(); err != nil {
		return invalidArgument("invalid preset: %v", err)
	}
	preset.Normalize()

	if c.cfg.Presets == nil {
		c.cfg.Presets = config.NewOrdered[config.StreamerConfig]()
	}
	c.cfg.Presets.Set(name, preset)
	c.save()

	updated := c.reg.UpdatePresetHandles(name, preset)
	c.log.Info().Str("preset", name).Int("rebound", updated).Msg("preset updated")
	return nil
}

// DeletePreset removes a preset that no streamer references.
func (c *ControlPlane) DeletePreset(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Presets == nil {
		return notFound("preset %q not found", name)
	}
	if _, ok := c.cfg.Presets.Get(name); !ok {
		return notFound("preset %q not found", name)
	}
	for _, streamer := range c.cfg.Streamers.Keys() {
		ct, _ := c.cfg.Streamers.Get(streamer)
		if ct.Preset == name {
			return conflict("preset %q is in use by streamer %q", name, streamer)
		}
	}
	c.cfg.Presets.Delete(name)
	c.save()
	c.log.Info().Str("preset", name).Msg("preset deleted")
	return nil
}

// SetStreamerConfig rebinds a mined broadcaster's config.
func (c *ControlPlane) SetStreamerConfig(name string, ct config.ConfigType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cfg.Streamers.Get(name); !exists {
		return notFound("streamer %q is not mined", name)
	}
	presetName, streamerCfg, err := c.resolve(ct)
	if err != nil {
		return err
	}

	c.cfg.Streamers.Set(name, ct)
	c.save()

	if id, ok := c.reg.IDByName(name); ok {
		if handle, ok := c.reg.ConfigFor(id); ok {
			handle.Replace(presetName, streamerCfg)
		}
	}
	c.log.Info().Str("streamer", name).Msg("streamer config updated")
	return nil
}

// WatchPriority returns a copy of the ordered watch list.
func (c *ControlPlane) WatchPriority() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.cfg.WatchPriority)
}

// SetWatchPriority replaces the watch list. Every entry must name a mined
// streamer and appear at most once.
func (c *ControlPlane) SetWatchPriority(names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := map[string]bool{}
	for _, name := range names {
		if _, ok := c.cfg.Streamers.Get(name); !ok {
			return invalidArgument("watch_priority entry %q is not a mined streamer", name)
		}
		if seen[name] {
			return invalidArgument("watch_priority entry %q is duplicated", name)
		}
		seen[name] = true
	}
	c.cfg.WatchPriority = slices.Clone(names)
	c.save()
	c.log.Info().Strs("priority", names).Msg("watch priority updated")
	return nil
}

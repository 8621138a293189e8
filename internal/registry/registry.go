// Package registry is the authoritative in-memory state for every mined
// broadcaster: liveness, point balances, active prediction events, and the
// shared config handle each broadcaster bets with.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/Graze/Graze/internal/config"
	"github.com/Graze/Graze/internal/model"
)

// ConfigHandle is a shared, mutable reference to a broadcaster's effective
// config. Preset updates rewrite the content in place so every broadcaster
// holding the handle picks up the new rules on its next evaluation.
type ConfigHandle struct {
	mu sync.RWMutex
	// PresetName is empty for Specific configs.
	presetName string
	cfg        config.StreamerConfig
}

// NewConfigHandle wraps a config. presetName is empty for inline configs.
func NewConfigHandle(presetName string, cfg config.StreamerConfig) *ConfigHandle {
	return &ConfigHandle{presetName: presetName, cfg: cfg}
}

// Snapshot returns a copy for evaluation; never evaluate under the handle lock.
func (h *ConfigHandle) Snapshot() config.StreamerConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// PresetName returns the preset this handle tracks, or "" for inline configs.
func (h *ConfigHandle) PresetName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presetName
}

// Replace swaps the config content, optionally rebinding the preset name.
func (h *ConfigHandle) Replace(presetName string, cfg config.StreamerConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presetName = presetName
	h.cfg = cfg
}

// TrackedPrediction pairs an event with its at-most-once bet flag.
type TrackedPrediction struct {
	Event  model.Event
	Placed bool
}

// Broadcaster is one mined channel's state. Mutated only through Registry
// methods.
type Broadcaster struct {
	ID                int64
	Name              string
	Live              bool
	BroadcastID       *string
	Points            int64
	LastPointsRefresh time.Time
	Predictions       map[string]*TrackedPrediction
	Config            *ConfigHandle
}

// Snapshot is a copy of a broadcaster's state, safe to use lock-free.
type Snapshot struct {
	ID                int64                        `json:"id"`
	Name              string                       `json:"name"`
	Live              bool                         `json:"live"`
	BroadcastID       *string                      `json:"broadcast_id"`
	Points            int64                        `json:"points"`
	LastPointsRefresh time.Time                    `json:"last_points_refresh"`
	Predictions       map[string]TrackedPrediction `json:"predictions"`
}

// Registry guards all broadcaster state behind one RW lock. No method may be
// called with outbound I/O pending; callers snapshot, drop the lock, then
// perform RPCs.
type Registry struct {
	mu        sync.RWMutex
	byID      map[int64]*Broadcaster
	byName    map[string]int64
	spadeURL  string
	userID    int64
	userLogin string
}

// New creates an empty registry for the given authenticated user.
func New(userID int64, userLogin string) *Registry {
	return &Registry{
		byID:      map[int64]*Broadcaster{},
		byName:    map[string]int64{},
		userID:    userID,
		userLogin: userLogin,
	}
}

// User returns the authenticated user's id and login.
func (r *Registry) User() (int64, string) {
	return r.userID, r.userLogin
}

// Add registers a broadcaster. Returns false if the name or id is taken.
func (r *Registry) Add(b *Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[b.Name]; ok {
		return false
	}
	if _, ok := r.byID[b.ID]; ok {
		return false
	}
	if b.Predictions == nil {
		b.Predictions = map[string]*TrackedPrediction{}
	}
	r.byID[b.ID] = b
	r.byName[b.Name] = b.ID
	return true
}

// Remove deletes a broadcaster by name, returning its id.
func (r *Registry) Remove(name string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	delete(r.byName, name)
	delete(r.byID, id)
	return id, true
}

// IDByName resolves a configured broadcaster name.
func (r *Registry) IDByName(name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Has reports whether the channel id is registered.
func (r *Registry) Has(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Name returns the broadcaster's login for a channel id.
func (r *Registry) Name(id int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return b.Name, true
}

// ConfigFor returns the broadcaster's shared config handle.
func (r *Registry) ConfigFor(id int64) (*ConfigHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return b.Config, true
}

// SetLive updates liveness. The live flag follows broadcastID being present.
func (r *Registry) SetLive(id int64, broadcastID *string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return false
	}
	b.Live = broadcastID != nil
	b.BroadcastID = broadcastID
	return true
}

// UpdatePoints caches a fresh balance.
func (r *Registry) UpdatePoints(id int64, points int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		b.Points = points
		b.LastPointsRefresh = time.Now()
	}
}

// Points returns the cached balance and its refresh time.
func (r *Registry) Points(id int64) (int64, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return 0, time.Time{}, false
	}
	return b.Points, b.LastPointsRefresh, true
}

// UpsertPrediction stores or replaces an event, preserving the placed flag
// on replace. Reports whether the event was already tracked.
func (r *Registry) UpsertPrediction(id int64, ev model.Event) (existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return false
	}
	if prev, ok := b.Predictions[ev.ID]; ok {
		prev.Event = ev
		return true
	}
	b.Predictions[ev.ID] = &TrackedPrediction{Event: ev}
	return false
}

// Prediction returns a copy of a tracked event.
func (r *Registry) Prediction(id int64, eventID string) (TrackedPrediction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return TrackedPrediction{}, false
	}
	p, ok := b.Predictions[eventID]
	if !ok {
		return TrackedPrediction{}, false
	}
	return *p, true
}

// MarkPlaced flips the at-most-once bet flag. Returns false when the event
// is unknown or the flag was already set.
func (r *Registry) MarkPlaced(id int64, eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return false
	}
	p, ok := b.Predictions[eventID]
	if !ok || p.Placed {
		return false
	}
	p.Placed = true
	return true
}

// RemovePrediction drops a settled event from the live map.
func (r *Registry) RemovePrediction(id int64, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		delete(b.Predictions, eventID)
	}
}

// UpdatePresetHandles rewrites the shared config of every broadcaster bound
// to the named preset. Returns how many handles were updated.
func (r *Registry) UpdatePresetHandles(preset string, cfg config.StreamerConfig) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.byID {
		if b.Config != nil && b.Config.PresetName() == preset {
			b.Config.Replace(preset, cfg)
			n++
		}
	}
	return n
}

// SpadeURL returns the current telemetry endpoint, empty until resolved.
func (r *Registry) SpadeURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spadeURL
}

// SetSpadeURL updates the telemetry endpoint.
func (r *Registry) SetSpadeURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spadeURL = url
}

func snapshotOf(b *Broadcaster) Snapshot {
	s := Snapshot{
		ID:                b.ID,
		Name:              b.Name,
		Live:              b.Live,
		BroadcastID:       b.BroadcastID,
		Points:            b.Points,
		LastPointsRefresh: b.LastPointsRefresh,
		Predictions:       map[string]TrackedPrediction{},
	}
	for id, p := range b.Predictions {
		s.Predictions[id] = *p
	}
	return s
}

// Get returns a copy of one broadcaster by name.
func (r *Registry) Get(name string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(r.byID[id]), true
}

// All returns copies of every broadcaster, ordered by name for stable output.
func (r *Registry) All() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.byID))
	for _, b := range r.byID {
		out = append(out, snapshotOf(b))
	}
	sortSnapshots(out)
	return out
}

// Live returns copies of the currently-live broadcasters.
func (r *Registry) Live() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Snapshot
	for _, b := range r.byID {
		if b.Live {
			out = append(out, snapshotOf(b))
		}
	}
	sortSnapshots(out)
	return out
}

func sortSnapshots(items []Snapshot) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}
